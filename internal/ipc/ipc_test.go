package ipc

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/railmon/powerstats/internal/parcel"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	echoDescriptor   = "test.Echo"
	notifyDescriptor = "test.Notify"

	codeEcho      = FirstCall
	codeBadArg    = FirstCall + 1
	codeDeviceErr = FirstCall + 2
	codeNotify    = FirstCall + 3
)

// echoStub is a test service: echoes strings, raises statuses on demand,
// and fans oneway callbacks back to a caller-owned object.
type echoStub struct {
	delay time.Duration
}

func (e *echoStub) Descriptor() string { return echoDescriptor }

func (e *echoStub) Transact(ctx context.Context, code uint32, in *parcel.Reader, out *parcel.Writer) error {
	switch code {
	case codeEcho:
		s, err := in.String16()
		if err != nil {
			return err
		}
		if e.delay > 0 {
			select {
			case <-time.After(e.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		out.WriteString16(s)
		return nil
	case codeBadArg:
		return Errorf(CodeIllegalArgument, "bad id 42")
	case codeDeviceErr:
		return ServiceError(7, "device sleeping")
	case codeNotify:
		n, err := in.Int32()
		if err != nil {
			return err
		}
		h, ok, err := in.ReadObjectHandle()
		if err != nil || !ok {
			return Errorf(CodeIllegalArgument, "missing receiver")
		}
		caller, ok := CallerFromContext(ctx)
		if !ok {
			return Errorf(CodeIllegalState, "no caller in context")
		}
		for i := int32(0); i < n; i++ {
			w := parcel.NewWriter()
			w.WriteString16(notifyDescriptor)
			w.WriteInt32(i)
			if err := caller.TransactOneway(ctx, Handle(h), FirstCall, w); err != nil {
				return err
			}
		}
		return nil
	}
	return Errorf(CodeUnsupported, "code %d", code)
}

type notifySink struct {
	mu   sync.Mutex
	got  []int32
	want int
	done chan struct{}
}

func newNotifySink(want int) *notifySink {
	return &notifySink{want: want, done: make(chan struct{})}
}

func (n *notifySink) Descriptor() string { return notifyDescriptor }

func (n *notifySink) Transact(_ context.Context, _ uint32, in *parcel.Reader, _ *parcel.Writer) error {
	v, err := in.Int32()
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.got = append(n.got, v)
	if len(n.got) == n.want {
		close(n.done)
	}
	n.mu.Unlock()
	return nil
}

// startHub serves the given services on a unix socket and returns a
// connected client.
func startHub(t *testing.T, services map[string]Stub) *Conn {
	t.Helper()
	srv := NewServer()
	for name, st := range services {
		srv.Register(name, st)
	}
	lis, err := net.Listen("unix", filepath.Join(t.TempDir(), "hub.sock"))
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := Dial("unix://" + lis.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func echoOnce(ctx context.Context, conn *Conn, svc Handle, payload string) (string, error) {
	w := parcel.NewWriter()
	w.WriteString16(echoDescriptor)
	w.WriteString16(payload)
	r, err := conn.Transact(ctx, svc, codeEcho, w)
	if err != nil {
		return "", err
	}
	return r.String16()
}

func TestEchoOverUnixSocket(t *testing.T) {
	conn := startHub(t, map[string]Stub{"echo": &echoStub{}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	svc, err := conn.GetService(ctx, "echo")
	if err != nil {
		t.Fatalf("GetService: %v", err)
	}
	got, err := echoOnce(ctx, conn, svc, "power")
	if err != nil {
		t.Fatalf("echo: %v", err)
	}
	if got != "power" {
		t.Fatalf("echo = %q", got)
	}
}

func TestNetPipePeers(t *testing.T) {
	p1, p2 := net.Pipe()
	client := NewConn(p1)
	peer := newConn(p2, map[Handle]Stub{1: &echoStub{}})
	defer func() {
		_ = client.Close()
		_ = peer.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := echoOnce(ctx, client, 1, "pipe")
	if err != nil {
		t.Fatalf("echo over pipe: %v", err)
	}
	if got != "pipe" {
		t.Fatalf("echo = %q", got)
	}
}

func TestConcurrentTransactionsMultiplexed(t *testing.T) {
	conn := startHub(t, map[string]Stub{"echo": &echoStub{}})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	svc, err := conn.GetService(ctx, "echo")
	if err != nil {
		t.Fatalf("GetService: %v", err)
	}

	var g errgroup.Group
	for worker := 0; worker < 8; worker++ {
		worker := worker
		g.Go(func() error {
			for i := 0; i < 25; i++ {
				payload := fmt.Sprintf("w%d-%d", worker, i)
				got, err := echoOnce(ctx, conn, svc, payload)
				if err != nil {
					return err
				}
				if got != payload {
					return fmt.Errorf("echo = %q, want %q", got, payload)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestCallbackDispatchOrder(t *testing.T) {
	conn := startHub(t, map[string]Stub{"echo": &echoStub{}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	svc, err := conn.GetService(ctx, "echo")
	if err != nil {
		t.Fatalf("GetService: %v", err)
	}

	const n = 50
	sink := newNotifySink(n)
	h := conn.RegisterObject(sink)
	defer conn.UnregisterObject(h)

	w := parcel.NewWriter()
	w.WriteString16(echoDescriptor)
	w.WriteInt32(n)
	w.WriteObjectHandle(uint64(h))
	if err := conn.TransactOneway(ctx, svc, codeNotify, w); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case <-sink.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callbacks")
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	for i, v := range sink.got {
		if v != int32(i) {
			t.Fatalf("callback %d carried %d; order broken: %v", i, v, sink.got)
		}
	}
}

func TestStatusErrors(t *testing.T) {
	conn := startHub(t, map[string]Stub{"echo": &echoStub{}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	svc, err := conn.GetService(ctx, "echo")
	if err != nil {
		t.Fatalf("GetService: %v", err)
	}

	w := parcel.NewWriter()
	w.WriteString16(echoDescriptor)
	_, err = conn.Transact(ctx, svc, codeBadArg, w)
	if !errors.Is(err, ErrIllegalArgument) {
		t.Fatalf("err = %v, want ErrIllegalArgument", err)
	}
	var st *Status
	if !errors.As(err, &st) || st.Code != CodeIllegalArgument {
		t.Fatalf("status = %+v", st)
	}
	if !strings.Contains(st.Message, "bad id 42") {
		t.Fatalf("message = %q", st.Message)
	}

	w = parcel.NewWriter()
	w.WriteString16(echoDescriptor)
	_, err = conn.Transact(ctx, svc, codeDeviceErr, w)
	if !errors.As(err, &st) {
		t.Fatalf("err = %v, want *Status", err)
	}
	if st.Code != CodeServiceSpecific || st.ServiceCode != 7 || st.Message != "device sleeping" {
		t.Fatalf("status = %+v", st)
	}
}

func TestInterfaceTokenMismatch(t *testing.T) {
	conn := startHub(t, map[string]Stub{"echo": &echoStub{}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	svc, err := conn.GetService(ctx, "echo")
	if err != nil {
		t.Fatalf("GetService: %v", err)
	}

	w := parcel.NewWriter()
	w.WriteString16("test.Imposter")
	w.WriteString16("hi")
	_, err = conn.Transact(ctx, svc, codeEcho, w)
	if !errors.Is(err, ErrSecurity) {
		t.Fatalf("err = %v, want ErrSecurity", err)
	}
}

func TestGetServiceUnknown(t *testing.T) {
	conn := startHub(t, map[string]Stub{"echo": &echoStub{}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := conn.GetService(ctx, "no-such-service")
	if !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("err = %v, want ErrServiceNotFound", err)
	}
}

func TestListServices(t *testing.T) {
	conn := startHub(t, map[string]Stub{
		"powerstats": &echoStub{},
		"echo":       &echoStub{},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	names, err := conn.ListServices(ctx)
	if err != nil {
		t.Fatalf("ListServices: %v", err)
	}
	want := []string{"echo", "powerstats"}
	if len(names) != len(want) || names[0] != want[0] || names[1] != want[1] {
		t.Fatalf("ListServices = %v, want %v", names, want)
	}
}

func TestTimeoutLeavesConnUsable(t *testing.T) {
	conn := startHub(t, map[string]Stub{
		"slow": &echoStub{delay: 250 * time.Millisecond},
		"fast": &echoStub{},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slow, err := conn.GetService(ctx, "slow")
	if err != nil {
		t.Fatalf("GetService: %v", err)
	}
	fast, err := conn.GetService(ctx, "fast")
	if err != nil {
		t.Fatalf("GetService: %v", err)
	}

	shortCtx, shortCancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer shortCancel()
	_, err = echoOnce(shortCtx, conn, slow, "late")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}

	// The abandoned transaction must not poison the connection; its late
	// reply is dropped by txn id lookup.
	got, err := echoOnce(ctx, conn, fast, "after-timeout")
	if err != nil {
		t.Fatalf("second transact: %v", err)
	}
	if got != "after-timeout" {
		t.Fatalf("echo = %q", got)
	}
}

func TestCloseFailsInflight(t *testing.T) {
	conn := startHub(t, map[string]Stub{"slow": &echoStub{delay: 2 * time.Second}})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	svc, err := conn.GetService(ctx, "slow")
	if err != nil {
		t.Fatalf("GetService: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := echoOnce(ctx, conn, svc, "never")
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	_ = conn.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrConnClosed) {
			t.Fatalf("in-flight err = %v, want ErrConnClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight transaction did not fail after Close")
	}

	if _, err := echoOnce(ctx, conn, svc, "closed"); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("post-close err = %v, want ErrConnClosed", err)
	}
}

func TestOversizedPayloadRejectedLocally(t *testing.T) {
	conn := startHub(t, map[string]Stub{"echo": &echoStub{}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	w := parcel.NewWriter()
	w.WriteString16(echoDescriptor)
	w.WriteString8(strings.Repeat("x", maxFramePayload))
	_, err := conn.Transact(ctx, HubHandle, codeEcho, w)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}
}

func TestMalformedFrameLengthClosesConn(t *testing.T) {
	srv := NewServer()
	srv.Register("echo", &echoStub{})
	lis, err := net.Listen("unix", filepath.Join(t.TempDir(), "hub.sock"))
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = srv.Serve(lis) }()
	defer func() { _ = srv.Close() }()

	nc, err := net.Dial("unix", lis.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = nc.Close() }()

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(maxFramePayload+1))
	if _, err := nc.Write(lenBuf[:]); err != nil {
		t.Fatalf("write: %v", err)
	}

	// The server must drop the connection on the announced oversize.
	_ = nc.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 1)
	if _, err := nc.Read(buf); err == nil {
		t.Fatal("expected connection to be closed by server")
	}
}
