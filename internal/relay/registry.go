package relay

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/patrickmn/go-cache"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Registry remembers which name a host last registered, so a reconnecting
// client can be handed its name without a prompt.
type Registry struct {
	names *cache.Cache
}

// NewRegistry returns a Registry whose entries expire after ttl.
// A ttl of zero keeps entries forever.
func NewRegistry(ttl time.Duration) *Registry {
	cleanup := 10 * time.Minute
	if ttl <= 0 {
		ttl = cache.NoExpiration
		cleanup = 0
	}
	return &Registry{names: cache.New(ttl, cleanup)}
}

// Remember records name for host, resetting its expiry.
func (r *Registry) Remember(host, name string) {
	r.names.SetDefault(host, name)
}

// Lookup returns the name remembered for host.
func (r *Registry) Lookup(host string) (string, bool) {
	v, ok := r.names.Get(host)
	if !ok {
		return "", false
	}
	name, ok := v.(string)
	return name, ok
}

// Forget drops host.
func (r *Registry) Forget(host string) {
	r.names.Delete(host)
}

// Len returns the number of unexpired entries.
func (r *Registry) Len() int {
	return r.names.ItemCount()
}

// Save writes every unexpired entry to w as a serialized
// google.protobuf.Struct keyed by host.
func (r *Registry) Save(w io.Writer) error {
	entries := make(map[string]any)
	for host, item := range r.names.Items() {
		name, ok := item.Object.(string)
		if !ok {
			continue
		}
		var expires int64
		if item.Expiration > 0 {
			expires = time.Unix(0, item.Expiration).Unix()
		}
		entries[host] = map[string]any{
			"name":         name,
			"expires_unix": expires,
		}
	}

	snapshot, err := structpb.NewStruct(entries)
	if err != nil {
		return fmt.Errorf("failed to build registry snapshot: %w", err)
	}
	data, err := proto.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode registry snapshot: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write registry snapshot: %w", err)
	}
	return nil
}

// Load merges a snapshot produced by Save. Entries that expired in the
// meantime are skipped.
func (r *Registry) Load(rd io.Reader) error {
	data, err := io.ReadAll(rd)
	if err != nil {
		return fmt.Errorf("failed to read registry snapshot: %w", err)
	}

	var snapshot structpb.Struct
	if err := proto.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("failed to decode registry snapshot: %w", err)
	}

	now := time.Now()
	for host, v := range snapshot.GetFields() {
		fields := v.GetStructValue().GetFields()
		name := fields["name"].GetStringValue()
		if name == "" {
			continue
		}

		expires := int64(fields["expires_unix"].GetNumberValue())
		if expires == 0 {
			r.names.Set(host, name, cache.NoExpiration)
			continue
		}
		if left := time.Unix(expires, 0).Sub(now); left > 0 {
			r.names.Set(host, name, left)
		}
	}
	return nil
}

// SaveFile writes a snapshot to path.
func (r *Registry) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create registry file: %w", err)
	}
	if err := r.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadFile loads a snapshot from path. A missing file is not an error.
func (r *Registry) LoadFile(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open registry file: %w", err)
	}
	defer f.Close()
	return r.Load(f)
}
