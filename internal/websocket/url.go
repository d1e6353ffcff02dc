package websocket

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

const letters = "abcdefghijklmnopqrstuvwxyz"

// ServerURL builds the SockJS style endpoint of a Showdown server:
//
//	{scheme}://{host}/showdown/{3 digits}/{8 lowercase letters}/websocket
//
// The random path segments only spread load on the server side.
func ServerURL(scheme, host string) string {
	var session strings.Builder
	for range 8 {
		session.WriteByte(letters[rand.IntN(len(letters))])
	}
	return fmt.Sprintf("%s://%s/showdown/%03d/%s/websocket", scheme, host, rand.IntN(1000), session.String())
}
