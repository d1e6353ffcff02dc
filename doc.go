// Package showdown provides a client framework for the Pokémon Showdown chat and battle protocol.
//
// A client keeps one websocket open to a Showdown server, folds the inbound
// message stream into per-room state, paces outbound commands through a
// scheduler, logs in through the HTTP action endpoint and calls user hooks on
// protocol events. Game logic is out of scope: only the observable metadata of
// battles is tracked.
//
// # Quick Start
//
//	import (
//	    "github.com/luciancaetano/showdown"
//	    "github.com/luciancaetano/showdown/client"
//	)
//
//	type echo struct{ showdown.NopHooks }
//
//	func (echo) OnPrivateMessage(ctx context.Context, c showdown.Client, m showdown.PrivateMessage) error {
//	    if m.Author.Equal(c.Self()) {
//	        return nil
//	    }
//	    return c.PrivateMessage(m.Author.Name, m.Content)
//	}
//
//	cfg := client.DefaultConfig()
//	cfg.Username, cfg.Password = "mybot", "secret"
//	c, err := client.New(cfg, echo{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = c.Start(ctx)
//
// # Protocol Format
//
// Inbound websocket frames are SockJS style:
//
//	o                      connection open
//	h                      heartbeat
//	c[code,"reason"]       server close
//	a["...","..."]         a batch of messages
//
// Every message of a batch is a block of lines. When the first line is
// ">roomid" the block belongs to that room, otherwise to "lobby". Each line is
// "|type|param|param...". Lines without a "|" are reported as "rawtext".
//
// Outbound frames are a JSON array of "roomid|/command args" strings.
//
// # Scheduling
//
// Every command is queued with an optional delay and expiry:
//
//	c.Say("lobby", "hi", showdown.WithDelay(2*time.Second), showdown.WithExpiry(10*time.Second))
//
// Items not ready yet go back to the end of the queue. Expired items are
// dropped without being sent. After a send the scheduler pauses 500ms per line
// to stay under the server's flood limits.
//
// # Hooks
//
// Hooks run in their own goroutines and receive deep copies of room state.
// Hook errors are logged, or end the session when Config.StrictHooks is set.
//
// # Reconnects
//
// With Config.AutoReconnect the client redials after a session ends, waiting
// 5s, then 10s, 20s and so on up to 180s between consecutive failures.
package showdown
