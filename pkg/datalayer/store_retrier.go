// SPDX-License-Identifier: Apache-2.0

package datalayer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"searchdal/internal/backoff"
	"searchdal/internal/searchstore"
	loglib "searchdal/pkg/log"
)

// BulkSeverity classifies a failed bulk item.
type BulkSeverity int

const (
	// BulkRetriable items failed on a transient engine condition and were
	// retried up to the configured backoff budget before being reported.
	BulkRetriable BulkSeverity = iota
	// BulkIgnored items failed in a way that is safe to skip, such as a
	// version conflict or deleting an already absent document.
	BulkIgnored
	// BulkDataLoss items were rejected by the engine and will not be
	// stored. Callers must surface these.
	BulkDataLoss
)

// BulkError is one failed item of a bulk request, with the originating
// document attached so callers can act on it.
type BulkError struct {
	ID       string
	Status   int
	Error    string
	Severity BulkSeverity
	Doc      Document
}

func (e BulkError) String() string {
	return fmt.Sprintf("[%s] status %d: %s", e.ID, e.Status, e.Error)
}

// BulkInsert indexes the documents in one bulk request. Results are per
// item: the returned ids are the documents that were stored, the bulk
// errors the ones that were not. The request as a whole only fails on
// transport errors. Items failing on transient engine conditions are
// retried with the configured backoff before being reported.
func (s *Store) BulkInsert(ctx context.Context, resource string, docs []Document) ([]string, []BulkError, error) {
	res, engine, client, err := s.resolve(resource)
	if err != nil {
		return nil, nil, err
	}

	index := engine.resourceIndex(res.sourceName())
	items := make([]searchstore.BulkItem, 0, len(docs))
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		id, _ := doc[FieldID].(string)
		if id == "" {
			id = s.generateID()
		}
		payload := stripIdentity(doc)
		s.stampAudit(payload)
		items = append(items, searchstore.BulkItem{
			Index: &searchstore.BulkIndex{
				Index:   index,
				ID:      id,
				Routing: parentRouting(res, doc),
			},
			Doc: payload,
		})
		ids = append(ids, id)
	}

	failed, err := s.sendBulkWithRetry(ctx, client, items)
	if err != nil {
		return nil, nil, fmt.Errorf("bulk inserting into %s: %w", resource, err)
	}
	if res.forceRefresh(engine) {
		if err := client.RefreshIndex(ctx, index); err != nil {
			s.logger.Warn(err, "refreshing index after bulk insert", loglib.Fields{"index": index})
		}
	}

	bulkErrors := make([]BulkError, 0, len(failed))
	failedIDs := make(map[string]struct{}, len(failed))
	for i := range failed {
		bulkErrors = append(bulkErrors, newBulkError(&failed[i]))
		failedIDs[bulkItemID(&failed[i])] = struct{}{}
	}

	stored := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := failedIDs[id]; !ok {
			stored = append(stored, id)
		}
	}
	return stored, bulkErrors, nil
}

// sendBulkWithRetry sends the items and retries the transiently failed ones
// with backoff. A transport level retryable error retries the whole batch.
func (s *Store) sendBulkWithRetry(ctx context.Context, client searchstore.Client, items []searchstore.BulkItem) ([]searchstore.BulkItem, error) {
	pending := items
	permanent := []searchstore.BulkItem{}

	var transportErr error
	op := func() error {
		failed, err := client.SendBulkRequest(ctx, pending)
		if err != nil {
			retryable := searchstore.RetryableError{}
			if errors.As(err, &retryable) {
				return err
			}
			transportErr = err
			return backoff.ErrPermanent
		}

		retry := []searchstore.BulkItem{}
		for i := range failed {
			if retryableBulkStatus(failed[i].Status) {
				retry = append(retry, failed[i])
				continue
			}
			permanent = append(permanent, failed[i])
		}
		if len(retry) > 0 {
			pending = retry
			return errBulkItemsPending
		}
		pending = nil
		return nil
	}

	err := s.backoffProvider(ctx).RetryNotify(op, func(err error, d time.Duration) {
		s.logger.Debug("retrying bulk request", loglib.Fields{
			"error":   err.Error(),
			"backoff": d.String(),
		})
	})
	switch {
	case err == nil:
	case errors.Is(err, errBulkItemsPending):
		// retry budget exhausted, report what is still pending
		permanent = append(permanent, pending...)
	case errors.Is(err, backoff.ErrPermanent):
		return nil, transportErr
	default:
		return nil, err
	}

	return permanent, nil
}

var errBulkItemsPending = errors.New("bulk items pending retry")

func retryableBulkStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func newBulkError(item *searchstore.BulkItem) BulkError {
	return BulkError{
		ID:       bulkItemID(item),
		Status:   item.Status,
		Error:    string(item.Error),
		Severity: bulkSeverity(item),
		Doc:      Document(item.Doc),
	}
}

func bulkItemID(item *searchstore.BulkItem) string {
	switch {
	case item.Index != nil:
		return item.Index.ID
	case item.Delete != nil:
		return item.Delete.ID
	}
	return ""
}

// bulkSeverity maps a failed item status to its severity: conflicts and
// deletes of absent documents are safe to skip, transient statuses were
// already retried, anything else rejected the document for good.
func bulkSeverity(item *searchstore.BulkItem) BulkSeverity {
	switch {
	case item.Status == http.StatusConflict:
		return BulkIgnored
	case item.Status == http.StatusNotFound && item.Delete != nil:
		return BulkIgnored
	case retryableBulkStatus(item.Status):
		return BulkRetriable
	}
	return BulkDataLoss
}
