package ftp

import (
	"sync"
	"sync/atomic"
)

// controlChannel serializes command/reply exchanges over a Transport. The
// specification's invariant that only one command may be outstanding at a
// time is enforced here with a mutex, not left to caller discipline.
//
// Replies are read through transport.ReadUntil rather than a private
// bufio.Reader so that a reply read is bound by the same deadline
// enforcement as every other control-channel operation.
//
// A *TransportError or *TimeoutError from either side of the wire leaves
// the underlying connection in an unknown state, so the channel latches
// itself unusable rather than let a caller retry over a connection that
// may have lost synchronization with the server.
type controlChannel struct {
	mu        sync.Mutex
	transport Transport
	sink      Sink
	debug     bool

	unusable atomic.Bool
	onFatal  func() // invoked once, the first time a fatal error is observed
}

// markFatal latches the channel unusable if err is a *TransportError or a
// *TimeoutError, and notifies onFatal so the owning Client can drop its
// session state to disconnected.
func (cc *controlChannel) markFatal(err error) {
	switch err.(type) {
	case *TransportError, *TimeoutError:
	default:
		return
	}
	if cc.unusable.CompareAndSwap(false, true) && cc.onFatal != nil {
		cc.onFatal()
	}
}

// exchange writes a single command line and reads back exactly one Reply.
// It is the building block every higher-level operation is implemented
// with; commands that expect a preliminary reply followed by a final one
// (transfers) use exchange for the command and its preliminary reply,
// then read the final reply with readReply.
func (cc *controlChannel) exchange(cmd Command, args ...string) (*Reply, error) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.exchangeLocked(cmd, args...)
}

func (cc *controlChannel) exchangeLocked(cmd Command, args ...string) (*Reply, error) {
	if cc.unusable.Load() {
		return nil, &UsageError{Op: string(cmd), Reason: "control channel unusable after a prior fatal error"}
	}
	line, err := encodeCommand(cmd, args...)
	if err != nil {
		return nil, err
	}
	logged := line
	if cmd == cmdPass {
		logged = string(cmdPass) + " ****\r\n"
	}
	if cc.debug {
		cc.sink.Debug("ftp: ->", "line", logged[:len(logged)-2])
	}
	if _, err := cc.transport.Write([]byte(line)); err != nil {
		cc.markFatal(err)
		return nil, err
	}
	reply, err := cc.readReply(string(cmd))
	if err != nil {
		return nil, err
	}
	if cc.debug {
		cc.sink.Debug("ftp: <-", "reply", reply.String())
	}
	return reply, nil
}

func (cc *controlChannel) readReply(op string) (*Reply, error) {
	reply, err := readReply(cc.transport, op)
	if err != nil {
		cc.markFatal(err)
		return nil, err
	}
	return reply, nil
}

// expect verifies an already-read reply against acceptCodes, returning an
// *UnexpectedReplyError when none of its codes is in the set. It does no
// I/O.
func (cc *controlChannel) expect(op string, reply *Reply, acceptCodes ...int) error {
	if !reply.Accepts(acceptCodes...) {
		return &UnexpectedReplyError{Op: op, Codes: reply.Codes, Text: reply.String()}
	}
	return nil
}

// command writes and reads one reply, verifying its code is in
// acceptCodes.
func (cc *controlChannel) command(op string, acceptCodes []int, cmd Command, args ...string) (*Reply, error) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	reply, err := cc.exchangeLocked(cmd, args...)
	if err != nil {
		return nil, err
	}
	if err := cc.expect(op, reply, acceptCodes...); err != nil {
		return reply, err
	}
	return reply, nil
}
