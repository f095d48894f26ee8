package propgraph

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/syssam/propgraph/dialect"
	entsql "github.com/syssam/propgraph/dialect/sql"
)

// idcache is the bidirectional PID to row-id translation cache. The mapping
// it mirrors is a total bijection over all existing rows: no row id exists
// without exactly one owning pid, and vice versa. Rows are never deleted by
// this core, so entries never need invalidation.
type idcache struct {
	mu   sync.RWMutex
	rows map[string]int64
	pids map[int64]string
	sf   singleflight.Group
}

func newIDCache() *idcache {
	return &idcache{
		rows: make(map[string]int64),
		pids: make(map[int64]string),
	}
}

func (c *idcache) row(pid string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.rows[pid]
	return id, ok
}

func (c *idcache) pid(id int64) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pid, ok := c.pids[id]
	return pid, ok
}

func (c *idcache) put(pid string, id int64) {
	c.mu.Lock()
	c.rows[pid] = id
	c.pids[id] = pid
	c.mu.Unlock()
}

func (c *idcache) merge(p *pending) {
	c.mu.Lock()
	for pid, id := range p.rows {
		c.rows[pid] = id
		c.pids[id] = pid
	}
	c.mu.Unlock()
}

// pending stages the identifier mappings created inside one transaction.
// They become visible to the shared cache only on commit, so a rollback
// cannot poison the translator.
type pending struct {
	rows map[string]int64
	pids map[int64]string
}

func newPending() *pending {
	return &pending{rows: make(map[string]int64), pids: make(map[int64]string)}
}

func (p *pending) put(pid string, id int64) {
	p.rows[pid] = id
	p.pids[id] = pid
}

// rowID translates an external PID to its internal row id, reading through
// the cache. Concurrent lookups for the same pid are collapsed. A missing
// pid reports ErrNotFound.
func (g *Graph) rowID(ctx context.Context, pid string) (int64, error) {
	if id, ok := g.ids.row(pid); ok {
		return id, nil
	}
	v, err, _ := g.ids.sf.Do("pid:"+pid, func() (any, error) {
		id, err := queryRowID(ctx, g.driver, pid)
		if err != nil {
			return 0, err
		}
		g.ids.put(pid, id)
		return id, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// pidFor translates an internal row id back to its external PID.
func (g *Graph) pidFor(ctx context.Context, id int64) (string, error) {
	if pid, ok := g.ids.pid(id); ok {
		return pid, nil
	}
	v, err, _ := g.ids.sf.Do("row:"+strconv.FormatInt(id, 10), func() (any, error) {
		pid, err := queryPID(ctx, g.driver, id)
		if err != nil {
			return "", err
		}
		g.ids.put(pid, id)
		return pid, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// rowID resolves a PID inside the transaction, seeing rows staged by it.
func (tx *Tx) rowID(ctx context.Context, pid string) (int64, error) {
	if id, ok := tx.pending.rows[pid]; ok {
		return id, nil
	}
	if id, ok := tx.g.ids.row(pid); ok {
		return id, nil
	}
	id, err := queryRowID(ctx, tx.tx, pid)
	if err != nil {
		return 0, err
	}
	// Rows found here predate the transaction; safe to share.
	tx.g.ids.put(pid, id)
	return id, nil
}

func queryRowID(ctx context.Context, q dialect.ExecQuerier, pid string) (int64, error) {
	rows := &entsql.Rows{}
	err := q.Query(ctx, "SELECT row_id FROM "+Table+" WHERE pid = ?", []any{pid}, rows)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, NewNotFoundError("node", pid)
	}
	var id int64
	if err := rows.Scan(&id); err != nil {
		return 0, err
	}
	return id, rows.Err()
}

func queryPID(ctx context.Context, q dialect.ExecQuerier, id int64) (string, error) {
	rows := &entsql.Rows{}
	err := q.Query(ctx, "SELECT pid FROM "+Table+" WHERE row_id = ?", []any{id}, rows)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	if !rows.Next() {
		return "", NewNotFoundError("row", id)
	}
	var pid string
	if err := rows.Scan(&pid); err != nil {
		return "", err
	}
	return pid, rows.Err()
}
