package receiver

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Run fans updates out to workers goroutines. Updates are sharded by user id, so each
// user's updates are handled in order by a single worker.
func (h *Handler) Run(ctx context.Context, updates <-chan tgbotapi.Update, workers int) {
	if workers < 1 {
		workers = 1
	}

	shards := make([]chan tgbotapi.Update, workers)
	var wg sync.WaitGroup
	for i := range shards {
		shards[i] = make(chan tgbotapi.Update, 16)
		wg.Add(1)
		go func(in <-chan tgbotapi.Update) {
			defer wg.Done()
			for u := range in {
				h.HandleUpdate(ctx, u)
			}
		}(shards[i])
	}
	defer func() {
		for _, c := range shards {
			close(c)
		}
		wg.Wait()
		h.logger.Info().Msg("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			userID, ok := updateUserID(u)
			if !ok {
				continue
			}
			select {
			case shards[shard(userID, workers)] <- u:
			case <-ctx.Done():
				return
			}
		}
	}
}

func shard(userID int64, workers int) int {
	if userID < 0 {
		userID = -userID
	}
	return int(userID % int64(workers))
}
