package presentation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowmerak/presentation.go/lib/presentation"
)

type fakeChannel struct {
	mu       sync.Mutex
	posted   []presentation.Envelope
	queries  int
	reply    string
	postErr  error
	queryErr error
}

func (c *fakeChannel) PostMessage(_ context.Context, message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.postErr != nil {
		return c.postErr
	}
	env, err := presentation.JSONCodec{}.Decode(message)
	if err != nil {
		return err
	}
	c.posted = append(c.posted, env)
	return nil
}

func (c *fakeChannel) SendSyncMessage(_ context.Context, message []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries++
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	return []byte(c.reply), nil
}

func (c *fakeChannel) Posted() []presentation.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]presentation.Envelope(nil), c.posted...)
}

func (c *fakeChannel) Queries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queries
}

func newPresentation(t *testing.T, ch *fakeChannel, opts ...presentation.Option) *presentation.Presentation {
	t.Helper()
	opts = append([]presentation.Option{presentation.WithLogger(zerolog.Nop())}, opts...)
	return presentation.New(ch, opts...)
}

func TestPresentation_ShowSucceeds(t *testing.T) {
	ch := &fakeChannel{}
	p := newPresentation(t, ch, presentation.WithOpenerContext(func() int64 { return 7 }))

	var views []presentation.View
	failed := false
	id := p.RequestShow("https://example.com",
		func(v presentation.View) { views = append(views, v) },
		func(*presentation.Error) { failed = true },
	)
	require.Equal(t, presentation.RequestID(1), id)

	posted := ch.Posted()
	require.Len(t, posted, 1)
	assert.Equal(t, presentation.Envelope{
		Cmd:       presentation.CmdRequestShow,
		RequestID: 1,
		URL:       "https://example.com",
		OpenerID:  7,
	}, posted[0])

	require.NoError(t, p.HandleMessage([]byte(`{"cmd":"ShowSucceeded","requestId":1,"data":42}`)))
	assert.Empty(t, views, "continuations wait for the next turn")
	assert.Equal(t, 1, p.Pending())

	p.Queue().Drain()
	assert.Equal(t, []presentation.View{presentation.ViewHandle(42)}, views)
	assert.False(t, failed)
	assert.Zero(t, p.Pending())

	require.NoError(t, p.HandleMessage([]byte(`{"cmd":"ShowSucceeded","requestId":1,"data":43}`)))
	p.Queue().Drain()
	assert.Len(t, views, 1, "a duplicate answer is ignored")
}

func TestPresentation_ShowSettlesWhateverTheHandle(t *testing.T) {
	p := newPresentation(t, &fakeChannel{})

	var views []presentation.View
	for i := 0; i < 2; i++ {
		p.RequestShow("https://example.com",
			func(v presentation.View) { views = append(views, v) },
			func(*presentation.Error) { t.Error("failure continuation called") },
		)
	}

	require.NoError(t, p.HandleMessage([]byte(`{"cmd":"ShowSucceeded","requestId":1,"data":"abc"}`)))
	require.NoError(t, p.HandleMessage([]byte(`{"cmd":"ShowSucceeded","requestId":2,"data":"42px"}`)))
	p.Queue().Drain()

	assert.Equal(t, []presentation.View{presentation.ViewHandleNone, presentation.ViewHandle(42)}, views)
	assert.Zero(t, p.Pending())
}

func TestPresentation_ShowFails(t *testing.T) {
	ch := &fakeChannel{}
	p := newPresentation(t, ch)

	var got *presentation.Error
	p.RequestShow("https://example.com", func(presentation.View) {
		t.Error("success continuation called")
	}, func(e *presentation.Error) { got = e })

	require.NoError(t, p.HandleMessage([]byte(`{"cmd":"ShowFailed","requestId":1,"data":"NotFoundError"}`)))
	p.Queue().Drain()

	require.NotNil(t, got)
	assert.Equal(t, presentation.NotFoundError, got.Name)
}

func TestPresentation_AvailabilityChange(t *testing.T) {
	ch := &fakeChannel{reply: "false"}
	p := newPresentation(t, ch)

	calls := 0
	p.AddEventListener("displayavailablechange", presentation.NewListener(func() { calls++ }))

	require.NoError(t, p.HandleMessage([]byte(`{"cmd":"DisplayAvailableChange","data":true}`)))
	assert.Zero(t, calls)

	p.Queue().Drain()
	assert.Equal(t, 1, calls)
	assert.True(t, p.DisplayAvailable())
	assert.Zero(t, ch.Queries(), "a listened-to value is served from the cache")
}

func TestPresentation_AvailabilityWithoutListenersQueriesHost(t *testing.T) {
	ch := &fakeChannel{reply: "true"}
	p := newPresentation(t, ch)

	assert.True(t, p.DisplayAvailable())
	assert.Equal(t, 1, ch.Queries())

	ch.mu.Lock()
	ch.reply = "false"
	ch.mu.Unlock()
	assert.False(t, p.DisplayAvailable())
	assert.Equal(t, 2, ch.Queries())
}

func TestPresentation_SlotAndListenersAreIndependent(t *testing.T) {
	p := newPresentation(t, &fakeChannel{})

	var calls []string
	l := presentation.NewListener(func() { calls = append(calls, "listener") })
	p.AddEventListener("displayavailablechange", l)
	p.SetOnDisplayAvailableChange(presentation.NewListener(func() { calls = append(calls, "slot") }))
	require.NotNil(t, p.OnDisplayAvailableChange())

	require.NoError(t, p.HandleMessage([]byte(`{"cmd":"DisplayAvailableChange","data":true}`)))
	p.Queue().Drain()
	assert.Equal(t, []string{"listener", "slot"}, calls)

	calls = nil
	p.RemoveEventListener("displayavailablechange", l)
	require.NoError(t, p.HandleMessage([]byte(`{"cmd":"DisplayAvailableChange","data":false}`)))
	p.Queue().Drain()
	assert.Equal(t, []string{"slot"}, calls)
}

func TestPresentation_EventNamesAreCaseSensitive(t *testing.T) {
	p := newPresentation(t, &fakeChannel{})

	fired := 0
	for _, name := range []string{"DisplayAvailableChange", "DISPLAYAVAILABLECHANGE", "displayAvailableChange"} {
		p.AddEventListener(name, presentation.NewListener(func() { fired++ }))
	}

	require.NoError(t, p.HandleMessage([]byte(`{"cmd":"DisplayAvailableChange","data":true}`)))
	p.Queue().Drain()
	assert.Zero(t, fired)
}

func TestPresentation_MessagesAreHandledInArrivalOrder(t *testing.T) {
	p := newPresentation(t, &fakeChannel{})

	var order []string
	p.AddEventListener("displayavailablechange", presentation.NewListener(func() { order = append(order, "available") }))
	p.RequestShow("https://example.com", func(presentation.View) { order = append(order, "shown") }, nil)

	require.NoError(t, p.HandleMessage([]byte(`{"cmd":"DisplayAvailableChange","data":true}`)))
	require.NoError(t, p.HandleMessage([]byte(`{"cmd":"ShowSucceeded","requestId":1,"data":5}`)))
	p.Queue().Drain()

	assert.Equal(t, []string{"available", "shown"}, order)
}

func TestPresentation_UnrecognizedMessagesAreDropped(t *testing.T) {
	p := newPresentation(t, &fakeChannel{})

	assert.ErrorIs(t, p.HandleMessage([]byte(`{"cmd":"Reboot"}`)), presentation.ErrUnrecognizedMessage)
	assert.ErrorIs(t, p.HandleMessage([]byte(`{{`)), presentation.ErrMalformedMessage)
	assert.Zero(t, p.Queue().Len())
}

func TestPresentation_PostFailureAborts(t *testing.T) {
	ch := &fakeChannel{postErr: errors.New("pipe closed")}
	p := newPresentation(t, ch)

	var got *presentation.Error
	p.RequestShow("https://example.com", nil, func(e *presentation.Error) { got = e })
	assert.Nil(t, got)

	p.Queue().Drain()
	require.NotNil(t, got)
	assert.Equal(t, presentation.AbortError, got.Name)
	assert.Zero(t, p.Pending())
}

func TestPresentation_OriginPolicyRejectsCrossOriginTargets(t *testing.T) {
	ch := &fakeChannel{}
	policy, err := presentation.NewOriginPolicy("https://example.com/app/")
	require.NoError(t, err)
	p := newPresentation(t, ch, presentation.WithOriginPolicy(policy))

	var got *presentation.Error
	p.RequestShow("https://evil.test/", nil, func(e *presentation.Error) { got = e })
	p.RequestShow("deck.html", nil, nil)
	p.Queue().Drain()

	require.NotNil(t, got)
	assert.Equal(t, presentation.SecurityError, got.Name)

	posted := ch.Posted()
	require.Len(t, posted, 1)
	assert.Equal(t, "https://example.com/app/deck.html", posted[0].URL)
	assert.Equal(t, presentation.RequestID(2), posted[0].RequestID)
}

func TestPresentation_RequestTimeout(t *testing.T) {
	p := newPresentation(t, &fakeChannel{}, presentation.WithRequestTimeout(10*time.Millisecond))

	got := make(chan *presentation.Error, 1)
	p.RequestShow("https://example.com", nil, func(e *presentation.Error) { got <- e })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	select {
	case e := <-got:
		assert.Equal(t, presentation.TimeoutError, e.Name)
	case <-ctx.Done():
		t.Fatal("request never timed out")
	}
}

func TestPresentation_AnswerStopsTimeout(t *testing.T) {
	p := newPresentation(t, &fakeChannel{}, presentation.WithRequestTimeout(20*time.Millisecond))

	failed := false
	shown := 0
	p.RequestShow("https://example.com", func(presentation.View) { shown++ }, func(*presentation.Error) { failed = true })
	require.NoError(t, p.HandleMessage([]byte(`{"cmd":"ShowSucceeded","requestId":1,"data":1}`)))
	p.Queue().Drain()

	time.Sleep(50 * time.Millisecond)
	p.Queue().Drain()

	assert.Equal(t, 1, shown)
	assert.False(t, failed)
}

func TestPresentation_CloseAbortsPendingRequests(t *testing.T) {
	ch := &fakeChannel{}
	p := newPresentation(t, ch)

	var names []string
	for i := 0; i < 3; i++ {
		p.RequestShow("https://example.com", nil, func(e *presentation.Error) { names = append(names, e.Name) })
	}

	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Close(), presentation.ErrClosed)

	p.Queue().Drain()
	assert.Equal(t, []string{presentation.AbortError, presentation.AbortError, presentation.AbortError}, names)
	assert.Zero(t, p.Pending())

	id := p.RequestShow("https://example.com",
		func(presentation.View) { t.Error("queue is closed") },
		func(*presentation.Error) { t.Error("queue is closed") },
	)
	assert.Equal(t, presentation.RequestID(4), id)
	assert.Zero(t, p.Pending(), "requests after Close are dropped")
	assert.Len(t, ch.Posted(), 3, "nothing reaches the host after Close")
}

func TestPresentation_SharedQueueSurvivesClose(t *testing.T) {
	q := presentation.NewTaskQueue()
	p := newPresentation(t, &fakeChannel{}, presentation.WithTaskQueue(q))
	require.NoError(t, p.Close())
	q.Drain()

	var got *presentation.Error
	p.RequestShow("https://example.com", nil, func(e *presentation.Error) { got = e })
	q.Drain()

	require.NotNil(t, got)
	assert.Equal(t, presentation.InvalidStateError, got.Name)
	require.NoError(t, q.Post(func() {}))
}
