// Package pprofutil exposes net/http/pprof on a loopback port for profiling
// a running node.
package pprofutil

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strings"
	"sync"
	"time"

	"zoldnode/internal/debuglog"
)

const (
	EnvEnable      = "ZOLD_PPROF"
	EnvAddr        = "ZOLD_PPROF_ADDR"
	EnvAllowPublic = "ZOLD_PPROF_ALLOW_PUBLIC"
	DefaultAddr    = "127.0.0.1:6060"
)

var ErrPublicBind = errors.New("pprof must bind to loopback")

var (
	envOnce sync.Once
	envAddr net.Addr
	envErr  error
)

// StartFromEnv calls Start once per process when ZOLD_PPROF=1 and returns a
// nil address otherwise.
func StartFromEnv() (net.Addr, error) {
	if strings.TrimSpace(os.Getenv(EnvEnable)) != "1" {
		return nil, nil
	}
	envOnce.Do(func() {
		addr := strings.TrimSpace(os.Getenv(EnvAddr))
		if addr == "" {
			addr = DefaultAddr
		}
		allowPublic := strings.TrimSpace(os.Getenv(EnvAllowPublic)) == "1"
		envAddr, envErr = Start(addr, allowPublic)
	})
	return envAddr, envErr
}

// Start serves the default mux on addr in the background.
func Start(addr string, allowPublic bool) (net.Addr, error) {
	if !allowPublic && !isLoopbackBind(addr) {
		return nil, fmt.Errorf("%w unless %s=1: %s", ErrPublicBind, EnvAllowPublic, addr)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("pprof listen failed: %w", err)
	}
	srv := &http.Server{
		Handler:           http.DefaultServeMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		_ = srv.Serve(ln)
	}()
	debuglog.Logf("pprof enabled: http://%s/debug/pprof/", ln.Addr())
	return ln.Addr(), nil
}

func isLoopbackBind(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	host = strings.TrimSpace(host)
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
