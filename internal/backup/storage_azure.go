package backup

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// AzureMirror replicates artifact files to an Azure Blob Storage container
type AzureMirror struct {
	containerURL  azblob.ContainerURL
	containerName string
	prefix        string
}

// NewAzureMirror creates an Azure Blob mirror using shared key credentials
func NewAzureMirror(config *AzureConfig, prefix string) (*AzureMirror, error) {
	if config == nil {
		return nil, NewValidationError("Azure mirror configuration is required", nil)
	}

	credential, err := azblob.NewSharedKeyCredential(config.AccountName, config.AccountKey)
	if err != nil {
		return nil, NewStorageError("failed to create Azure credentials", err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	serviceURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net", config.AccountName))
	if err != nil {
		return nil, NewStorageError("failed to parse Azure service URL", err)
	}

	return &AzureMirror{
		containerURL:  azblob.NewServiceURL(*serviceURL, pipeline).NewContainerURL(config.ContainerName),
		containerName: config.ContainerName,
		prefix:        prefix,
	}, nil
}

// Name identifies the mirror in logs
func (m *AzureMirror) Name() string {
	return "azure"
}

// Upload copies the artifact file at localPath into a block blob
func (m *AzureMirror) Upload(ctx context.Context, localPath, name string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", NewStorageError("failed to open artifact for Azure upload", err)
	}
	defer file.Close()

	blobName := mirrorKey(m.prefix, name)
	blobURL := m.containerURL.NewBlockBlobURL(blobName)

	_, err = azblob.UploadFileToBlockBlob(ctx, file, blobURL, azblob.UploadToBlockBlobOptions{
		BlockSize:   4 * 1024 * 1024,
		Parallelism: 4,
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{
			ContentType: contentTypeFor(name),
		},
	})
	if err != nil {
		return "", NewStorageError("failed to upload artifact to Azure", err)
	}

	return fmt.Sprintf("azure://%s/%s", m.containerName, blobName), nil
}

// Delete removes the mirrored copy of name
func (m *AzureMirror) Delete(ctx context.Context, name string) error {
	blobURL := m.containerURL.NewBlockBlobURL(mirrorKey(m.prefix, name))
	_, err := blobURL.Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{})
	if err != nil {
		if stgErr, ok := err.(azblob.StorageError); ok && stgErr.ServiceCode() == azblob.ServiceCodeBlobNotFound {
			return nil
		}
		return NewStorageError("failed to delete artifact from Azure", err)
	}
	return nil
}
