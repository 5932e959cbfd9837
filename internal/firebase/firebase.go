package firebase

import (
	"context"
	"fmt"
	"io/ioutil"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"firebase.google.com/go/v4/messaging"
	"github.com/sta1300/notifier-backend/internal/config"
	"github.com/sta1300/notifier-backend/internal/logging"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

//DatabaseScopes OAuth scopes of the Realtime Database REST API.
var DatabaseScopes = []string{
	"https://www.googleapis.com/auth/firebase.database",
	"https://www.googleapis.com/auth/userinfo.email",
}

//Clients Firebase service clients sharing one app.
type Clients struct {
	Database  *db.Client
	Firestore *firestore.Client
	Messaging *messaging.Client
}

//ClientOptions Credential options from config: service account JSON wins over credentials file, with
//neither the application default credentials are used.
func ClientOptions(conf config.FirebaseConfig) []option.ClientOption {
	var opts []option.ClientOption
	if conf.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(conf.CredentialsJSON)))
	} else if conf.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(conf.CredentialsFile))
	}
	return opts
}

//TokenSource Access tokens for calling Firebase REST APIs directly, from the same credentials as ClientOptions.
func TokenSource(ctx context.Context, conf config.FirebaseConfig, scopes ...string) (oauth2.TokenSource, error) {
	var data []byte
	if conf.CredentialsJSON != "" {
		data = []byte(conf.CredentialsJSON)
	} else if conf.CredentialsFile != "" {
		var err error
		if data, err = ioutil.ReadFile(conf.CredentialsFile); err != nil {
			return nil, fmt.Errorf("reading credentials: %w", err)
		}
	}

	if data != nil {
		creds, err := google.CredentialsFromJSON(ctx, data, scopes...)
		if err != nil {
			return nil, err
		}
		return creds.TokenSource, nil
	}

	creds, err := google.FindDefaultCredentials(ctx, scopes...)
	if err != nil {
		return nil, err
	}
	return creds.TokenSource, nil
}

//NewClients Initializes the Firebase app and its clients.
func NewClients(ctx context.Context, conf config.FirebaseConfig) (*Clients, error) {
	logger := logging.FromContext(ctx).Named("firebase.NewClients")

	opts := ClientOptions(conf)

	app, err := firebase.NewApp(ctx, &firebase.Config{
		DatabaseURL: conf.DatabaseURL,
		ProjectID:   conf.ProjectID,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}

	clients := &Clients{}

	if clients.Database, err = app.Database(ctx); err != nil {
		return nil, fmt.Errorf("app.Database: %w", err)
	}
	if clients.Firestore, err = app.Firestore(ctx); err != nil {
		return nil, fmt.Errorf("app.Firestore: %w", err)
	}
	if clients.Messaging, err = app.Messaging(ctx); err != nil {
		return nil, fmt.Errorf("app.Messaging: %w", err)
	}

	logger.Infof("Firebase initialized, database %v", conf.DatabaseURL)

	return clients, nil
}

//Close Releases the Firestore connection.
func (c *Clients) Close() error {
	if c == nil || c.Firestore == nil {
		return nil
	}
	return c.Firestore.Close()
}
