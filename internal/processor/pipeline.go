package processor

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Rahul9182/Resume-screener/internal/logger"
	"github.com/Rahul9182/Resume-screener/internal/types"
)

// BatchItem 批量处理的一个输入文档
type BatchItem struct {
	FileName string
	Data     []byte
}

// BatchResult 单份文档的处理结果，失败时Record为nil且Err非空
type BatchResult struct {
	FileName string
	Record   *types.CandidateRecord
	Merged   bool
	Err      error
}

// ProcessBatch 用固定数量的工作协程并发处理一批文档。
// 每份文档的失败互相隔离，结果按输入顺序返回。
func (o *Orchestrator) ProcessBatch(ctx context.Context, items []BatchItem, workers int) []BatchResult {
	ctx, span := tracer.Start(ctx, "processor.ProcessBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("batch.size", len(items)))

	if workers <= 0 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}

	results := make([]BatchResult, len(items))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				item := items[idx]

				// 上下文取消后剩余文档直接标记失败，不再调用模型
				if err := ctx.Err(); err != nil {
					results[idx] = BatchResult{FileName: item.FileName, Err: err}
					continue
				}

				record, merged, err := o.ProcessDocument(ctx, item.FileName, item.Data)
				results[idx] = BatchResult{
					FileName: item.FileName,
					Record:   record,
					Merged:   merged,
					Err:      err,
				}
			}
		}()
	}

	for idx := range items {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Err == nil {
			succeeded++
		}
	}
	span.SetAttributes(attribute.Int("batch.succeeded", succeeded))

	logger.Ctx(ctx).Info().
		Int("total", len(items)).
		Int("succeeded", succeeded).
		Int("workers", workers).
		Msg("批量处理完成")

	return results
}
