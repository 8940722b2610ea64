// Copyright 2026 The luaugo Authors
// SPDX-License-Identifier: MIT

// Package bytecodecache provides a SQLite-backed cache of compiled Luau bytecode.
package bytecodecache

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"luaugo.256lights.llc/pkg/internal/luau"
	"zombiezen.com/go/log"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitemigration"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Key identifies a compilation: a source text, the options it was compiled with,
// and the bytecode version of the linked compiler.
type Key [sha256.Size]byte

// KeyFor returns the cache key for compiling source with the given options description
// (typically [*luau.CompileOptions.String])
// using the linked compiler.
func KeyFor(source []byte, options string) Key {
	return keyFor(luau.BytecodeVersion(), source, options)
}

func keyFor(version int, source []byte, options string) Key {
	h := sha256.New()
	h.Write([]byte("luaugo bytecode v1\x00"))
	var lenBuf [binary.MaxVarintLen64]byte
	h.Write(binary.AppendUvarint(lenBuf[:0], uint64(version)))
	h.Write(binary.AppendUvarint(lenBuf[:0], uint64(len(options))))
	h.Write([]byte(options))
	h.Write(source)
	var k Key
	h.Sum(k[:0])
	return k
}

// String returns the key in hex.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// Cache is a bytecode cache stored in a SQLite database.
// It is safe to use from multiple goroutines.
type Cache struct {
	pool *sqlitemigration.Pool
	now  func() time.Time
}

// Open opens the cache database at path, creating it if necessary.
// Schema migrations are applied lazily on first use.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return nil, fmt.Errorf("open bytecode cache: %v", err)
	}
	var schema sqlitemigration.Schema
	for i := 1; ; i++ {
		migration, err := fs.ReadFile(sqlFiles(), fmt.Sprintf("schema/%02d.sql", i))
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("open bytecode cache: read migrations: %v", err)
		}
		schema.Migrations = append(schema.Migrations, string(migration))
	}
	return &Cache{
		pool: sqlitemigration.NewPool(path, schema, sqlitemigration.Options{
			Flags:       sqlite.OpenCreate | sqlite.OpenReadWrite,
			PoolSize:    2,
			PrepareConn: prepareConn,
		}),
		now: time.Now,
	}, nil
}

func prepareConn(conn *sqlite.Conn) error {
	if err := sqlitex.ExecuteTransient(conn, "PRAGMA journal_mode=wal;", nil); err != nil {
		return fmt.Errorf("enable write-ahead logging: %v", err)
	}
	return nil
}

// Close releases the cache's connections.
func (c *Cache) Close() error {
	return c.pool.Close()
}

// Get returns the bytecode stored for k
// and marks the entry as recently used.
// Entries whose bytecode version differs from the linked compiler's
// are reported as not found.
func (c *Cache) Get(ctx context.Context, k Key) (_ []byte, found bool, err error) {
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("get %v from bytecode cache: %v", k, err)
	}
	defer c.pool.Put(conn)
	defer sqlitex.Save(conn)(&err)

	var bytecode []byte
	err = sqlitex.ExecuteTransientFS(conn, sqlFiles(), "get.sql", &sqlitex.ExecOptions{
		Named: map[string]any{
			":key": k[:],
		},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			bytecode = make([]byte, stmt.GetLen("bytecode"))
			stmt.GetBytes("bytecode", bytecode)
			found = true
			return nil
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("get %v from bytecode cache: %v", k, err)
	}
	if !found {
		log.Debugf(ctx, "Bytecode cache miss for %v", k)
		return nil, false, nil
	}
	if v := luau.BytecodeVersion(); len(bytecode) == 0 || int(bytecode[0]) != v {
		log.Debugf(ctx, "Bytecode cache entry %v has version %d (want %d); ignoring", k, firstByte(bytecode), v)
		return nil, false, nil
	}
	err = sqlitex.ExecuteTransientFS(conn, sqlFiles(), "touch.sql", &sqlitex.ExecOptions{
		Named: map[string]any{
			":key": k[:],
			":now": c.now().Unix(),
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("get %v from bytecode cache: %v", k, err)
	}
	log.Debugf(ctx, "Bytecode cache hit for %v (%d bytes)", k, len(bytecode))
	return bytecode, true, nil
}

// Put stores bytecode for k, replacing any previous entry.
// Bytecode that encodes a compile error is rejected.
func (c *Cache) Put(ctx context.Context, k Key, bytecode []byte) error {
	if err := luau.BytecodeError(bytecode); err != nil {
		return fmt.Errorf("put %v in bytecode cache: %w", k, err)
	}
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("put %v in bytecode cache: %v", k, err)
	}
	defer c.pool.Put(conn)

	err = sqlitex.ExecuteTransientFS(conn, sqlFiles(), "put.sql", &sqlitex.ExecOptions{
		Named: map[string]any{
			":key":      k[:],
			":bytecode": bytecode,
			":now":      c.now().Unix(),
		},
	})
	if err != nil {
		return fmt.Errorf("put %v in bytecode cache: %v", k, err)
	}
	return nil
}

func firstByte(b []byte) int {
	if len(b) == 0 {
		return -1
	}
	return int(b[0])
}

// Prune deletes entries that have not been used since cutoff
// and returns the number of entries deleted.
func (c *Cache) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("prune bytecode cache: %v", err)
	}
	defer c.pool.Put(conn)

	err = sqlitex.ExecuteTransientFS(conn, sqlFiles(), "prune.sql", &sqlitex.ExecOptions{
		Named: map[string]any{
			":cutoff": cutoff.Unix(),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("prune bytecode cache: %v", err)
	}
	n := conn.Changes()
	log.Debugf(ctx, "Pruned %d bytecode cache entries", n)
	return n, nil
}

// Len returns the number of entries in the cache.
func (c *Cache) Len(ctx context.Context) (int, error) {
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("count bytecode cache: %v", err)
	}
	defer c.pool.Put(conn)

	var n int
	err = sqlitex.ExecuteTransientFS(conn, sqlFiles(), "count.sql", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			n = int(stmt.GetInt64("n"))
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("count bytecode cache: %v", err)
	}
	return n, nil
}

//go:embed sql
var rawSQLFiles embed.FS

func sqlFiles() fs.FS {
	fsys, err := fs.Sub(rawSQLFiles, "sql")
	if err != nil {
		panic(err)
	}
	return fsys
}
