package heartbeat

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/settings"
)

// Result is the outcome of one liveness check.
type Result struct {
	Reachable bool
	Method    settings.Method
	Latency   time.Duration
	Err       error
}

// Checker performs a liveness check against ip using the given settings.
// Failures are reported in Result, never as a separate error: an unreachable
// device is an expected outcome.
type Checker interface {
	Check(ctx context.Context, ip string, hb settings.Heartbeat) Result
}

// ICMPChecker sends a single echo request using pro-bing.
type ICMPChecker struct {
	// Privileged selects raw sockets. Unprivileged UDP ping is used otherwise,
	// which needs net.ipv4.ping_group_range on Linux.
	Privileged bool
}

// NewICMPChecker returns an ICMPChecker with the platform default privilege.
func NewICMPChecker() *ICMPChecker {
	return &ICMPChecker{Privileged: runtime.GOOS == "windows"}
}

// Check pings ip once and waits at most hb.ICMPTimeout.
func (c *ICMPChecker) Check(ctx context.Context, ip string, hb settings.Heartbeat) Result {
	res := Result{Method: settings.MethodICMP}
	if ip == "" {
		res.Err = ErrNoAddress
		return res
	}

	pinger, err := probing.NewPinger(ip)
	if err != nil {
		res.Err = fmt.Errorf("create pinger: %w", err)
		return res
	}
	pinger.Count = 1
	pinger.Timeout = hb.ICMPTimeoutDuration()
	pinger.SetPrivileged(c.Privileged)

	done := make(chan error, 1)
	go func() {
		done <- pinger.Run()
	}()

	select {
	case err := <-done:
		if err != nil {
			res.Err = fmt.Errorf("ping %s: %w", ip, err)
			return res
		}
		stats := pinger.Statistics()
		if stats.PacketsRecv == 0 {
			res.Err = ErrNoReply
			return res
		}
		res.Reachable = true
		res.Latency = stats.AvgRtt
		return res
	case <-ctx.Done():
		pinger.Stop()
		res.Err = ctx.Err()
		return res
	}
}

// TCPChecker reports a device reachable when a TCP connection to the
// configured port succeeds.
type TCPChecker struct {
	dialer net.Dialer
}

// NewTCPChecker returns a TCPChecker.
func NewTCPChecker() *TCPChecker {
	return &TCPChecker{}
}

// Check dials ip:hb.TCPPort and waits at most hb.TCPTimeout.
func (c *TCPChecker) Check(ctx context.Context, ip string, hb settings.Heartbeat) Result {
	res := Result{Method: settings.MethodTCP}
	if ip == "" {
		res.Err = ErrNoAddress
		return res
	}

	probeCtx, cancel := context.WithTimeout(ctx, hb.TCPTimeoutDuration())
	defer cancel()

	start := time.Now()
	conn, err := c.dialer.DialContext(probeCtx, "tcp", net.JoinHostPort(ip, strconv.Itoa(hb.TCPPort)))
	if err != nil {
		res.Err = fmt.Errorf("dial %s:%d: %w", ip, hb.TCPPort, err)
		return res
	}
	res.Latency = time.Since(start)
	_ = conn.Close()

	res.Reachable = true
	return res
}

// MethodChecker dispatches on the configured method. With MethodBoth the TCP
// check runs only after the ICMP check failed; Result.Method names the check
// that produced the answer.
type MethodChecker struct {
	ICMP Checker
	TCP  Checker
}

// NewMethodChecker returns a MethodChecker backed by the real ICMP and TCP
// checkers.
func NewMethodChecker() *MethodChecker {
	return &MethodChecker{ICMP: NewICMPChecker(), TCP: NewTCPChecker()}
}

// Check implements Checker.
func (m *MethodChecker) Check(ctx context.Context, ip string, hb settings.Heartbeat) Result {
	switch hb.Method {
	case settings.MethodICMP:
		return m.ICMP.Check(ctx, ip, hb)
	case settings.MethodTCP:
		return m.TCP.Check(ctx, ip, hb)
	case settings.MethodBoth:
		if res := m.ICMP.Check(ctx, ip, hb); res.Reachable || ctx.Err() != nil {
			return res
		}
		return m.TCP.Check(ctx, ip, hb)
	default:
		return Result{Method: hb.Method, Err: fmt.Errorf("%w: %q", ErrUnknownMethod, hb.Method)}
	}
}
