package dataaccess

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/acessivel/mobility/internal/docstore"
	mobilityerrors "github.com/acessivel/mobility/internal/errors"
)

// BatchWrite commits ops as one atomic batch. Once the commit returns, every
// cached key mentioning an affected collection is dropped along with that
// collection's page cursors.
func (h *Helpers) BatchWrite(ctx context.Context, ops []docstore.Op) error {
	if len(ops) == 0 {
		return nil
	}

	if err := h.store.Commit(ctx, ops); err != nil {
		return mobilityerrors.Backend(fmt.Sprintf("failed to commit batch of %d operations", len(ops)), err)
	}

	writes, deletes := 0, 0
	collections := make(map[string]struct{})
	for _, op := range ops {
		if op.Type == docstore.OpDelete {
			deletes++
		} else {
			writes++
		}
		collections[op.Ref.Collection] = struct{}{}
	}
	if writes > 0 {
		h.monitor.TrackWrite(writes)
	}
	if deletes > 0 {
		h.monitor.TrackDelete(deletes)
	}

	names := make([]string, 0, len(collections))
	for name := range collections {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h.pages.ClearCursors(name)
	}

	h.log.WithFields(map[string]interface{}{
		"operations":  len(ops),
		"collections": names,
	}).Debug("batch committed")
	return nil
}

// ConditionalUpdate writes only the fields of proposed whose JSON encoding
// differs from current, plus the updated-at stamp. It reports whether a
// write was issued.
func (h *Helpers) ConditionalUpdate(ctx context.Context, ref docstore.Ref, proposed, current map[string]any) (bool, error) {
	if ref.Collection == "" || ref.ID == "" {
		return false, mobilityerrors.InvalidInput(mobilityerrors.ServiceBackend, "document reference needs a collection and an id")
	}

	changes := Diff(proposed, current)
	if len(changes) == 0 {
		return false, nil
	}
	changes[UpdatedAtField] = h.clock.Now().UTC().Format(time.RFC3339)

	if err := h.store.Update(ctx, ref, changes); err != nil {
		return false, mobilityerrors.Backend(fmt.Sprintf("failed to update %s", ref.Path()), err)
	}
	h.monitor.TrackWrite(1)
	h.invalidate(ref.Collection)
	return true, nil
}

// Diff returns the entries of proposed that differ from current. Values are
// compared by their JSON encoding, so 1 and 1.0 are equal.
func Diff(proposed, current map[string]any) map[string]any {
	changes := make(map[string]any)
	for k, v := range proposed {
		old, ok := current[k]
		if !ok || !sameJSON(v, old) {
			changes[k] = v
		}
	}
	return changes
}

func sameJSON(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return string(ja) == string(jb)
}
