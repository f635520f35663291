package main

import (
	"fmt"
	"log"

	reactor "github.com/kayserve/reactor"
)

// echoHandler is the built-in entrypoint used when no plugin path is given
// on the command line, loosely grounded on original_source/modern/httpd's
// page404/server default response: every connection gets one plain-text
// response to its first request (read up to the blank line ending the
// headers) and is then closed, nothing resembling routing or templating.
// It exists so reactord is runnable out of the box, not as a reference
// HTTP implementation.
type echoHandler struct {
	nodeName string
}

func newEchoHandler(nodeName string) *echoHandler {
	return &echoHandler{nodeName: nodeName}
}

// OnAccept runs on the worker goroutine that owns conn; it only spawns
// the per-connection goroutine, which enqueues the first read and awaits
// it. OnAccept does no I/O itself.
func (h *echoHandler) OnAccept(conn *reactor.AsyncFD) {
	go h.serve(conn)
}

func (h *echoHandler) serve(conn *reactor.AsyncFD) {
	for {
		res, ok := (<-conn.ReadUntil([]byte("\r\n\r\n")).ToChannel()).(reactor.ReadResult)
		if !ok || res.Error {
			return
		}

		body := fmt.Sprintf("reactord(%s) received %d bytes\n", h.nodeName, len(res.Data))
		resp := fmt.Sprintf(
			"HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
			len(body), body,
		)

		ok2, _ := (<-conn.Write([]byte(resp)).ToChannel()).(bool)
		if !ok2 {
			return
		}
		if err := conn.Close(); err != nil {
			log.Printf("reactord: close after response: %v", err)
		}
		return
	}
}
