package conn

import (
	"crypto/md5"
	"encoding/hex"
)

// stmtCache maps query fingerprints to prepared statements for one physical
// connection. It never evicts: a connection running an unbounded set of
// distinct query texts grows it without limit.
type stmtCache struct {
	stmts map[string]*Stmt
}

// fingerprint hashes the literal query text. Textually different but
// equivalent queries get different slots.
func fingerprint(query string) string {
	sum := md5.Sum([]byte(query))
	return hex.EncodeToString(sum[:])
}

func (c *stmtCache) lookup(fp string) (*Stmt, bool) {
	st, ok := c.stmts[fp]
	return st, ok
}

func (c *stmtCache) set(fp string, st *Stmt) {
	if c.stmts == nil {
		c.stmts = make(map[string]*Stmt)
	}
	c.stmts[fp] = st
}

func (c *stmtCache) len() int {
	return len(c.stmts)
}

// clear closes every cached statement and empties the cache. The first close
// error is returned; the cache is emptied regardless.
func (c *stmtCache) clear() error {
	var first error
	for _, st := range c.stmts {
		if err := st.release(); err != nil && first == nil {
			first = err
		}
	}
	c.stmts = nil
	return first
}
