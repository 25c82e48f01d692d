package firebase

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"io.winapps.triptracker/internal/config"
)

// Clients bundles the Firebase services the journal uses.
type Clients struct {
	App        *firebase.App
	Firestore  *firestore.Client
	Bucket     *storage.BucketHandle
	BucketName string
	Messaging  *messaging.Client
}

// Close releases the Firestore connection.
func (c *Clients) Close() error {
	if c.Firestore == nil {
		return nil
	}
	return c.Firestore.Close()
}

// InitFirebase initializes and returns a Firebase app instance
func InitFirebase(ctx context.Context, cfg config.FirebaseConfig) (*firebase.App, error) {
	fbConfig := &firebase.Config{
		ProjectID:     cfg.ProjectID,
		StorageBucket: cfg.StorageBucket,
	}

	var opts []option.ClientOption
	if cfg.ServiceAccountPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.ServiceAccountPath))
	}
	// Without a service account file, default credentials are used (useful
	// for Google Cloud deployment).
	app, err := firebase.NewApp(ctx, fbConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}
	return app, nil
}

// InitClients initializes the app and the Firestore, Storage and Messaging
// clients. The storage bucket is optional; without it photo uploads are off.
func InitClients(ctx context.Context, cfg config.FirebaseConfig) (*Clients, error) {
	app, err := InitFirebase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	fs, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get Firestore client: %w", err)
	}

	msg, err := app.Messaging(ctx)
	if err != nil {
		fs.Close()
		return nil, fmt.Errorf("failed to get Firebase Messaging client: %w", err)
	}

	clients := &Clients{App: app, Firestore: fs, Messaging: msg}

	if cfg.StorageBucket != "" {
		st, err := app.Storage(ctx)
		if err != nil {
			fs.Close()
			return nil, fmt.Errorf("failed to get Firebase Storage client: %w", err)
		}
		bucket, err := st.DefaultBucket()
		if err != nil {
			fs.Close()
			return nil, fmt.Errorf("failed to get storage bucket: %w", err)
		}
		clients.Bucket = bucket
		clients.BucketName = cfg.StorageBucket
	}

	return clients, nil
}
