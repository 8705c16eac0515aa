package database

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rickgao/crypto-etl/internal/config"
	"github.com/rickgao/crypto-etl/internal/model"
)

// unreachableConfig points at a local port with nothing listening.
func unreachableConfig(t *testing.T) config.DBConfig {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	return config.DBConfig{
		Host:     "127.0.0.1",
		Port:     port,
		Name:     "crypto",
		User:     "etl",
		Password: "pw",
		SSLMode:  "disable",
		MaxConns: 2,
		MinConns: 1,
	}
}

func TestManager_NotInitialized(t *testing.T) {
	m := NewManager(unreachableConfig(t), nil)

	if s := m.Stat(); s != (PoolStat{}) {
		t.Errorf("Stat() = %+v, want zero value", s)
	}
}

func TestManager_UnpooledAcquireFailsWithConnectionKind(t *testing.T) {
	m := NewManager(unreachableConfig(t), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lease, err := m.Acquire(ctx)
	if err == nil {
		m.Release(lease)
		t.Fatal("Acquire() expected error for unreachable server")
	}
	if got := model.KindOf(err); got != model.KindConnection {
		t.Errorf("KindOf(err) = %v, want %v", got, model.KindConnection)
	}
}

func TestManager_InitializeFailsWithConnectionKind(t *testing.T) {
	m := NewManager(unreachableConfig(t), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := m.Initialize(ctx)
	if err == nil {
		t.Fatal("Initialize() expected error for unreachable server")
	}
	if !model.IsKind(err, model.KindConnection) {
		t.Errorf("Initialize() error kind = %v, want connection", model.KindOf(err))
	}
	if s := m.Stat(); s != (PoolStat{}) {
		t.Errorf("Stat() = %+v after failed Initialize, want zero value", s)
	}
}

func TestManager_WithConnSkipsFnOnAcquireError(t *testing.T) {
	m := NewManager(unreachableConfig(t), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	called := false
	err := m.WithConn(ctx, func(Conn) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("WithConn() expected error")
	}
	if called {
		t.Error("fn should not run when acquire fails")
	}
}

func TestManager_AcquireAfterShutdown(t *testing.T) {
	m := NewManager(unreachableConfig(t), nil)
	m.Shutdown()

	_, err := m.Acquire(context.Background())
	if !errors.Is(err, ErrShutdown) {
		t.Errorf("Acquire() after Shutdown error = %v, want ErrShutdown", err)
	}
	if err := m.Initialize(context.Background()); !errors.Is(err, ErrShutdown) {
		t.Errorf("Initialize() after Shutdown error = %v, want ErrShutdown", err)
	}

	// A second shutdown is harmless.
	m.Shutdown()
}

func TestManager_ReleaseNil(t *testing.T) {
	m := NewManager(unreachableConfig(t), nil)
	m.Release(nil)
	m.Release(&Lease{})
}
