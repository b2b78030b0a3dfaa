package ledger

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

const blobTimeout = 30 * time.Second

// BlobStorage implements the Storage interface on an Azure Blob Storage container
type BlobStorage struct {
	client    *azblob.Client
	container string
}

// NewBlobStorage connects to serviceURL. With an account name and key it signs
// requests with a shared key (Azurite or a storage account key); otherwise it
// uses the default Azure credential chain.
func NewBlobStorage(serviceURL, container, accountName, accountKey string) (*BlobStorage, error) {
	if serviceURL == "" || container == "" {
		return nil, fmt.Errorf("blob service URL and container are required")
	}

	var (
		client *azblob.Client
		err    error
	)
	if accountName != "" && accountKey != "" {
		cred, credErr := azblob.NewSharedKeyCredential(accountName, accountKey)
		if credErr != nil {
			return nil, fmt.Errorf("creating shared key credential: %w", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	} else {
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, fmt.Errorf("creating default azure credential: %w", credErr)
		}
		client, err = azblob.NewClient(serviceURL, cred, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("creating blob client: %w", err)
	}

	return &BlobStorage{client: client, container: container}, nil
}

// Save uploads data as a blob named name
func (b *BlobStorage) Save(name string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), blobTimeout)
	defer cancel()

	if _, err := b.client.UploadBuffer(ctx, b.container, name, data, nil); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return name, nil
}

// Get downloads a blob
func (b *BlobStorage) Get(path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), blobTimeout)
	defer cancel()

	resp, err := b.client.DownloadStream(ctx, b.container, path, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, fmt.Errorf("reading file %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("reading file: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a blob
func (b *BlobStorage) Delete(path string) error {
	ctx, cancel := context.WithTimeout(context.Background(), blobTimeout)
	defer cancel()

	if _, err := b.client.DeleteBlob(ctx, b.container, path, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return fmt.Errorf("deleting file %s: %w", path, ErrNotFound)
		}
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}
