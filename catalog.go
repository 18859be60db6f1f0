package heapengine

import "sync"

// Catalog is the registry mapping a tableId to the DBFile and schema that
// back it. The BufferPool relies on exactly two calls: GetDbFile and
// GetTupleDesc. Loading a catalog from a schema file is explicitly out of
// scope; callers build one with AddTable.
type Catalog struct {
	mu    sync.RWMutex
	files map[int64]DBFile
	names map[string]int64
}

// NewCatalog constructs an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		files: make(map[int64]DBFile),
		names: make(map[string]int64),
	}
}

// AddTable registers file under name and returns its tableId (the file's
// own deterministic ID).
func (c *Catalog) AddTable(name string, file DBFile) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := file.ID()
	c.files[id] = file
	c.names[name] = id
	return id
}

// GetDbFile returns the DBFile registered under tableId.
func (c *Catalog) GetDbFile(tableId int64) (DBFile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.files[tableId]
	if !ok {
		return nil, newErr(DbError, "no such table id %d", tableId)
	}
	return f, nil
}

// GetTupleDesc returns the schema of the table registered under tableId.
func (c *Catalog) GetTupleDesc(tableId int64) (*TupleDesc, error) {
	f, err := c.GetDbFile(tableId)
	if err != nil {
		return nil, err
	}
	return f.Descriptor(), nil
}

// GetTableId resolves a table name to its tableId.
func (c *Catalog) GetTableId(name string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.names[name]
	if !ok {
		return 0, newErr(DbError, "no such table %q", name)
	}
	return id, nil
}
