package storage

import (
	"context"
	"errors"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"
)

type tableCreator interface {
	CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
}

type queueCreator interface {
	Create(ctx context.Context, o *azqueue.CreateOptions) (azqueue.CreateResponse, error)
}

// Init creates the given tables and queues. Existing ones are left as they
// are and empty names are ignored.
func Init(ctx context.Context, connStr string, tables, queues []string) error {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	for _, name := range tables {
		if name == "" {
			continue
		}
		if err := createTable(ctx, svc.NewClient(name)); err != nil {
			return err
		}
		log.WithField("table", name).Info("table ready")
	}
	for _, name := range queues {
		if name == "" {
			continue
		}
		q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
		if err != nil {
			return err
		}
		if err := createQueue(ctx, q); err != nil {
			return err
		}
		log.WithField("queue", name).Info("queue ready")
	}
	return nil
}

func createTable(ctx context.Context, c tableCreator) error {
	_, err := c.CreateTable(ctx, nil)
	if err != nil && !hasErrorCode(err, string(aztables.TableAlreadyExists)) {
		return err
	}
	return nil
}

func createQueue(ctx context.Context, q queueCreator) error {
	_, err := q.Create(ctx, nil)
	if err != nil && !hasErrorCode(err, "QueueAlreadyExists") {
		return err
	}
	return nil
}

func hasErrorCode(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}
