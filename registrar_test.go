package ergolink

import (
	"testing"
	"time"

	"github.com/driftcore/ergolink/bridge"
	"github.com/driftcore/ergolink/etf"
	"github.com/stretchr/testify/require"
)

func TestRegistrarBroadcastBoundedDropsOldest(t *testing.T) {
	r := newRegistrar("node@host")
	defer r.Close()

	sub := r.Subscribe(true)
	for i := int64(1); i <= int64(rawSubscriberBuffer)+6; i++ {
		r.Broadcast(Result{Term: i})
	}
	// Broadcast only queues a frame. Wait until the registrar has taken
	// every queued frame, then make one synchronous request so the last
	// fan-out has finished before reading.
	require.Eventually(t, func() bool { return len(r.broadcastCh) == 0 }, time.Second, time.Millisecond)
	r.NextPid()

	var got []int64
	for i := 0; i < rawSubscriberBuffer; i++ {
		res := <-sub.ch
		got = append(got, res.Term.(int64))
	}
	require.Len(t, got, rawSubscriberBuffer)
	require.Equal(t, int64(7), got[0])
	require.Equal(t, int64(rawSubscriberBuffer)+6, got[len(got)-1])
}

func TestRegistrarUnsubscribeClosesChannel(t *testing.T) {
	r := newRegistrar("node@host")
	defer r.Close()

	sub := r.Subscribe(true)
	r.Unsubscribe(sub)

	_, ok := <-sub.ch
	require.False(t, ok)
}

func TestRegistrarCloseReleasesSubscribers(t *testing.T) {
	r := newRegistrar("node@host")
	sub := r.Subscribe(false)
	r.Close()

	_, ok := <-sub.ch
	require.False(t, ok)
}

func TestRegistrarHandlerRegisterLookupUnregister(t *testing.T) {
	r := newRegistrar("node@host")
	defer r.Close()

	pid := etf.Pid{Node: "node@host", Num: 1, Creation: 1}
	h := func(sender etf.Pid, args etf.Term) (interface{}, error) { return nil, nil }
	r.RegisterHandler(pid, h, bridge.Default())

	_, ok := r.Lookup(pid)
	require.True(t, ok)

	r.UnregisterHandler(pid)
	_, ok = r.Lookup(pid)
	require.False(t, ok)
}

func TestRegistrarNameRegistrationRejectsDuplicate(t *testing.T) {
	r := newRegistrar("node@host")
	defer r.Close()

	p1 := etf.Pid{Node: "node@host", Num: 1, Creation: 1}
	p2 := etf.Pid{Node: "node@host", Num: 2, Creation: 1}

	require.True(t, r.RegisterName("rex_client", p1))
	require.False(t, r.RegisterName("rex_client", p2))

	resolved, ok := r.ResolveName("rex_client")
	require.True(t, ok)
	require.Equal(t, p1, resolved)

	_, ok = r.ResolveName("nobody")
	require.False(t, ok)
}

func TestRegistrarNextPidIsMonotonicAndStable(t *testing.T) {
	r := newRegistrar("node@host")
	defer r.Close()

	a := r.NextPid()
	b := r.NextPid()
	require.NotEqual(t, a, b)
	require.Less(t, a.Num, b.Num)
	require.Equal(t, etf.Atom("node@host"), a.Node)
}
