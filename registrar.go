package ergolink

import (
	"sync"

	"github.com/driftcore/ergolink/bridge"
	"github.com/driftcore/ergolink/etf"
)

// rawSubscriberBuffer bounds a Messages() subscription; once full, the
// oldest buffered frame is dropped to make room for the newest, so a
// slow consumer loses history instead of stalling the reader.
const rawSubscriberBuffer = 64

// correlationSubscriberBuffer backs RPC waiters, which must never drop a
// frame (the one they drop could be their reply). Go has no unbounded
// channel; a waiter finds its one matching :rex frame and unsubscribes
// promptly, so a generous fixed buffer stands in for one.
const correlationSubscriberBuffer = 4096

// CallHandler answers an inbound {:call, id, sender, args} frame
// addressed to a Pid this connection registered. Its return value is
// bridge-encoded under the registration's Policy and SENT back to
// sender; a non-nil error becomes {:error, message_binary} instead.
type CallHandler func(sender etf.Pid, args etf.Term) (interface{}, error)

type handlerReg struct {
	handler CallHandler
	policy  bridge.Policy
}

// subscriber is one consumer of the reader task's fan-out.
type subscriber struct {
	ch      chan Result
	bounded bool
}

type subscribeRequest struct {
	bounded bool
	reply   chan *subscriber
}

type handlerRequest struct {
	pid     etf.Pid
	handler CallHandler
	policy  bridge.Policy
}

type nameRequest struct {
	name  string
	pid   etf.Pid
	reply chan bool
}

type lookupPidRequest struct {
	pid   etf.Pid
	reply chan struct {
		reg handlerReg
		ok  bool
	}
}

type resolveNameRequest struct {
	name  string
	reply chan struct {
		pid etf.Pid
		ok  bool
	}
}

// registrar is the single actor owning a Connection's subscriber list,
// its locally-registered names, and its inbound-call handler table.
// Where a full node would route each message to a registered process
// mailbox, this client hosts no processes of its own, so the registry
// collapses to fanning decoded frames out to subscribers and looking
// call handlers up by Pid. Every mutation runs on registrar.run's single
// goroutine; callers reach it only through channel requests, so none of
// these maps needs a mutex.
type registrar struct {
	subscribeCh   chan subscribeRequest
	unsubscribeCh chan *subscriber
	registerCh    chan handlerRequest
	unregisterCh  chan etf.Pid
	lookupCh      chan lookupPidRequest
	nameCh        chan nameRequest
	resolveCh     chan resolveNameRequest
	broadcastCh   chan Result
	pidCh         chan chan etf.Pid

	closeOnce sync.Once
	closeCh   chan struct{}
	stopped   chan struct{}

	nodeName string
}

func newRegistrar(nodeName string) *registrar {
	r := &registrar{
		subscribeCh:   make(chan subscribeRequest),
		unsubscribeCh: make(chan *subscriber),
		registerCh:    make(chan handlerRequest),
		unregisterCh:  make(chan etf.Pid),
		lookupCh:      make(chan lookupPidRequest),
		nameCh:        make(chan nameRequest),
		resolveCh:     make(chan resolveNameRequest),
		broadcastCh:   make(chan Result, 64),
		pidCh:         make(chan chan etf.Pid),
		closeCh:       make(chan struct{}),
		stopped:       make(chan struct{}),
		nodeName:      nodeName,
	}
	go r.run()
	return r
}

func (r *registrar) run() {
	subs := make(map[*subscriber]struct{})
	handlers := make(map[etf.Pid]handlerReg)
	names := make(map[string]etf.Pid)
	var nextPid uint32

	defer close(r.stopped)
	for {
		select {
		case req := <-r.subscribeCh:
			buf := rawSubscriberBuffer
			if !req.bounded {
				buf = correlationSubscriberBuffer
			}
			sub := &subscriber{ch: make(chan Result, buf), bounded: req.bounded}
			subs[sub] = struct{}{}
			req.reply <- sub

		case sub := <-r.unsubscribeCh:
			if _, ok := subs[sub]; ok {
				delete(subs, sub)
				close(sub.ch)
			}

		case req := <-r.registerCh:
			handlers[req.pid] = handlerReg{handler: req.handler, policy: req.policy}

		case pid := <-r.unregisterCh:
			delete(handlers, pid)

		case req := <-r.lookupCh:
			reg, ok := handlers[req.pid]
			req.reply <- struct {
				reg handlerReg
				ok  bool
			}{reg, ok}

		case req := <-r.nameCh:
			if _, taken := names[req.name]; taken {
				req.reply <- false
				continue
			}
			names[req.name] = req.pid
			req.reply <- true

		case req := <-r.resolveCh:
			pid, ok := names[req.name]
			req.reply <- struct {
				pid etf.Pid
				ok  bool
			}{pid, ok}

		case frame := <-r.broadcastCh:
			for sub := range subs {
				if !sub.bounded {
					sub.ch <- frame
					continue
				}
				select {
				case sub.ch <- frame:
				default:
					select {
					case <-sub.ch:
					default:
					}
					select {
					case sub.ch <- frame:
					default:
					}
				}
			}

		case reply := <-r.pidCh:
			nextPid++
			reply <- etf.Pid{Node: etf.Atom(r.nodeName), Num: nextPid, Serial: 0, Creation: 1}

		case <-r.closeCh:
			// Frames Broadcast queued before Close (such as the terminal
			// receive error) still reach subscribers before their channels
			// close; a subscriber with a full buffer misses them.
			for len(r.broadcastCh) > 0 {
				frame := <-r.broadcastCh
				for sub := range subs {
					select {
					case sub.ch <- frame:
					default:
					}
				}
			}
			for sub := range subs {
				close(sub.ch)
			}
			return
		}
	}
}

func (r *registrar) Subscribe(bounded bool) *subscriber {
	reply := make(chan *subscriber, 1)
	select {
	case r.subscribeCh <- subscribeRequest{bounded: bounded, reply: reply}:
		return <-reply
	case <-r.stopped:
		return &subscriber{ch: closedResultChan(), bounded: bounded}
	}
}

func (r *registrar) Unsubscribe(sub *subscriber) {
	select {
	case r.unsubscribeCh <- sub:
	case <-r.stopped:
	}
}

func (r *registrar) RegisterHandler(pid etf.Pid, h CallHandler, p bridge.Policy) {
	select {
	case r.registerCh <- handlerRequest{pid: pid, handler: h, policy: p}:
	case <-r.stopped:
	}
}

func (r *registrar) UnregisterHandler(pid etf.Pid) {
	select {
	case r.unregisterCh <- pid:
	case <-r.stopped:
	}
}

func (r *registrar) Lookup(pid etf.Pid) (handlerReg, bool) {
	reply := make(chan struct {
		reg handlerReg
		ok  bool
	}, 1)
	select {
	case r.lookupCh <- lookupPidRequest{pid: pid, reply: reply}:
		res := <-reply
		return res.reg, res.ok
	case <-r.stopped:
		return handlerReg{}, false
	}
}

func (r *registrar) RegisterName(name string, pid etf.Pid) bool {
	reply := make(chan bool, 1)
	select {
	case r.nameCh <- nameRequest{name: name, pid: pid, reply: reply}:
		return <-reply
	case <-r.stopped:
		return false
	}
}

func (r *registrar) ResolveName(name string) (etf.Pid, bool) {
	reply := make(chan struct {
		pid etf.Pid
		ok  bool
	}, 1)
	select {
	case r.resolveCh <- resolveNameRequest{name: name, reply: reply}:
		res := <-reply
		return res.pid, res.ok
	case <-r.stopped:
		return etf.Pid{}, false
	}
}

func (r *registrar) Broadcast(res Result) {
	select {
	case r.broadcastCh <- res:
	case <-r.stopped:
	}
}

func (r *registrar) NextPid() etf.Pid {
	reply := make(chan etf.Pid, 1)
	select {
	case r.pidCh <- reply:
		return <-reply
	case <-r.stopped:
		return etf.Pid{}
	}
}

func (r *registrar) Close() {
	r.closeOnce.Do(func() { close(r.closeCh) })
	<-r.stopped
}

func closedResultChan() chan Result {
	ch := make(chan Result)
	close(ch)
	return ch
}
