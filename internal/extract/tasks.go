package extract

import (
	"context"

	"github.com/JakeFAU/spider/internal/task"
)

// Task names registered by the adapters below.
const (
	LinkInfoTaskName = "extract_link_info"
	PageInfoTaskName = "extract_page_info"
)

// LinkInfoTask runs LinkInfo on the URL given as positional arg 0 or the
// named arg "url".
func LinkInfoTask(_ context.Context, args task.Args) (any, error) {
	rawURL, err := args.String(0, "url")
	if err != nil {
		return nil, err
	}
	return LinkInfo(rawURL)
}

// PageInfoTask binds PageInfo to fetcher.
func PageInfoTask(fetcher Fetcher) task.Func {
	return func(ctx context.Context, args task.Args) (any, error) {
		rawURL, err := args.String(0, "url")
		if err != nil {
			return nil, err
		}
		return PageInfo(ctx, fetcher, rawURL)
	}
}
