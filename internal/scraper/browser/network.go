package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/sync/errgroup"
)

// CapturedResponse is the body of one sniffed data-fetch response.
type CapturedResponse struct {
	URL  string
	Body []byte
}

// isDataFetch keeps XHR and fetch() traffic, leaving documents and assets
// out.
func isDataFetch(t proto.NetworkResourceType) bool {
	return t == proto.NetworkResourceTypeXHR || t == proto.NetworkResourceTypeFetch
}

// ObserveResponses subscribes to the page's network events before any
// navigation happens. Every data-fetch response whose URL passes match is
// read once loading finishes and handed to sink. sink may run from several
// goroutines and must not block for long.
//
// The returned stop function unsubscribes and waits for in-flight body reads
// to complete; it must be called exactly once.
func (p *Page) ObserveResponses(ctx context.Context, match func(url string) bool, sink func(CapturedResponse)) (stop func(), err error) {
	if err := (proto.NetworkEnable{}).Call(p.page); err != nil {
		return nil, fmt.Errorf("enable network domain: %w", err)
	}

	listenCtx, cancel := context.WithCancel(ctx)
	var (
		mu      sync.Mutex
		pending = map[proto.NetworkRequestID]string{}
		reads   errgroup.Group
	)

	wait := p.page.Context(listenCtx).EachEvent(
		func(e *proto.NetworkResponseReceived) {
			if e.Response == nil || !isDataFetch(e.Type) || !match(e.Response.URL) {
				return
			}
			mu.Lock()
			pending[e.RequestID] = e.Response.URL
			mu.Unlock()
		},
		func(e *proto.NetworkLoadingFinished) {
			mu.Lock()
			url, ok := pending[e.RequestID]
			delete(pending, e.RequestID)
			mu.Unlock()
			if !ok {
				return
			}

			id := e.RequestID
			reads.Go(func() error {
				// Read through the session-scoped page: listenCtx is gone by
				// the time stop drains the late reads.
				res, err := proto.NetworkGetResponseBody{RequestID: id}.Call(p.page.Context(ctx))
				if err != nil {
					return nil
				}
				body := []byte(res.Body)
				if res.Base64Encoded {
					decoded, err := base64.StdEncoding.DecodeString(res.Body)
					if err != nil {
						return nil
					}
					body = decoded
				}
				sink(CapturedResponse{URL: url, Body: body})
				return nil
			})
		},
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		wait()
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
			_ = reads.Wait()
		})
	}, nil
}
