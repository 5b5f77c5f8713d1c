package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const itemColumns = `id, name, category, original_image_uri, thumbnail_image_uri, is_image_missing, created_at, updated_at`

func scanItem(row interface{ Scan(...any) error }) (Item, error) {
	var it Item
	var missing int
	var created, updated int64
	err := row.Scan(&it.ID, &it.Name, &it.Category, &it.OriginalImageURI, &it.ThumbnailImageURI,
		&missing, &created, &updated)
	if err != nil {
		return Item{}, err
	}
	it.IsImageMissing = missing != 0
	it.CreatedAt = time.Unix(created, 0)
	it.UpdatedAt = time.Unix(updated, 0)
	return it, nil
}

// ListItems returns every clothing item ordered by id.
func (d *Database) ListItems(ctx context.Context) ([]Item, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_items", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, "SELECT "+itemColumns+" FROM clothing_items ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if it, err = scanItem(rows); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	err = rows.Err()
	return items, err
}

// GetItem returns one item or ErrItemNotFound.
func (d *Database) GetItem(ctx context.Context, id string) (*Item, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_item", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	it, err := scanItem(d.db.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM clothing_items WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// UpsertItem inserts an item or replaces its fields. CreatedAt is kept from
// the first insert.
func (d *Database) UpsertItem(ctx context.Context, it Item) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_item", start, err) }()

	if strings.TrimSpace(it.ID) == "" {
		err = fmt.Errorf("item id is empty")
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO clothing_items (id, name, category, original_image_uri, thumbnail_image_uri, is_image_missing, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, strftime('%s', 'now'), strftime('%s', 'now'))
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			original_image_uri = excluded.original_image_uri,
			thumbnail_image_uri = excluded.thumbnail_image_uri,
			is_image_missing = excluded.is_image_missing,
			updated_at = strftime('%s', 'now')
	`, it.ID, it.Name, it.Category, it.OriginalImageURI, it.ThumbnailImageURI, boolToInt(it.IsImageMissing))
	return err
}

// UpdateImageState applies patch to the item's image fields.
func (d *Database) UpdateImageState(ctx context.Context, id string, patch ImageStatePatch) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_image_state", start, err) }()

	if patch.Empty() {
		return nil
	}

	var sets []string
	var args []any
	if patch.OriginalImageURI != nil {
		sets = append(sets, "original_image_uri = ?")
		args = append(args, *patch.OriginalImageURI)
	}
	if patch.ThumbnailImageURI != nil {
		sets = append(sets, "thumbnail_image_uri = ?")
		args = append(args, *patch.ThumbnailImageURI)
	}
	if patch.IsImageMissing != nil {
		sets = append(sets, "is_image_missing = ?")
		args = append(args, boolToInt(*patch.IsImageMissing))
	}
	sets = append(sets, "updated_at = strftime('%s', 'now')")
	args = append(args, id)

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, "UPDATE clothing_items SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		err = fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return err
}

// RemoveItem deletes an item. Removing a missing item is not an error.
func (d *Database) RemoveItem(ctx context.Context, id string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("remove_item", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "DELETE FROM clothing_items WHERE id = ?", id)
	return err
}

// ActiveItemIDs returns the set of item ids currently in the store.
func (d *Database) ActiveItemIDs(ctx context.Context) (map[string]struct{}, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("active_item_ids", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, "SELECT id FROM clothing_items")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	err = rows.Err()
	return ids, err
}

// CountItems returns the number of items and how many are flagged as missing
// their image.
func (d *Database) CountItems(ctx context.Context) (total, missing int, err error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	err = d.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(is_image_missing), 0) FROM clothing_items").Scan(&total, &missing)
	return total, missing, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
