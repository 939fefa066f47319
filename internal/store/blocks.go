package store

import (
	"context"
	"fmt"

	"github.com/elonfeng/shelfradar/pkg/catalog"
)

// AddBlock stores a user block. Blocking the same target twice is a no-op.
func (s *SQLStore) AddBlock(ctx context.Context, b *catalog.Block) error {
	if err := catalog.ValidateBlock(b); err != nil {
		return err
	}
	_, err := s.exec(ctx, `
		INSERT INTO user_blocks (user_id, block_type, block_id, block_name, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, block_type, block_id) DO NOTHING
	`, b.UserID, b.Type, b.BlockID, b.BlockName, s.now())
	if err != nil {
		return fmt.Errorf("add block user=%d %s=%d: %w", b.UserID, b.Type, b.BlockID, err)
	}
	return nil
}

func (s *SQLStore) RemoveBlock(ctx context.Context, userID int64, blockType catalog.BlockType, blockID int64) error {
	res, err := s.exec(ctx,
		"DELETE FROM user_blocks WHERE user_id = ? AND block_type = ? AND block_id = ?",
		userID, blockType, blockID)
	if err != nil {
		return fmt.Errorf("remove block user=%d %s=%d: %w", userID, blockType, blockID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("remove block user=%d %s=%d: %w", userID, blockType, blockID, ErrNotFound)
	}
	return nil
}

// ListBlocks returns a user's blocks. Unknown users have none.
func (s *SQLStore) ListBlocks(ctx context.Context, userID int64) ([]catalog.Block, error) {
	var blocks []catalog.Block
	err := s.db.SelectContext(ctx, &blocks, s.db.Rebind(`
		SELECT user_id, block_type, block_id, block_name FROM user_blocks
		WHERE user_id = ?
		ORDER BY block_type, block_id
	`), userID)
	if err != nil {
		return nil, fmt.Errorf("list blocks user=%d: %w", userID, err)
	}
	return blocks, nil
}
