//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoTez.
//
// GoTez is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoTez is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoTez. If not, see https://www.gnu.org/licenses/.

package history

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRecorderError wraps MongoDB failures with the operation that hit them.
type MongoRecorderError struct {
	Op  string
	Err error
}

func (e *MongoRecorderError) Error() string {
	return fmt.Sprintf("mongo recorder %s: %v", e.Op, e.Err)
}

func (e *MongoRecorderError) Unwrap() error {
	return e.Err
}

// MongoRecorderOptions configures the MongoDB recorder.
type MongoRecorderOptions struct {
	URI         string        // MongoDB connection URI
	Database    string        // Database name
	Collection  string        // Collection name
	Timeout     time.Duration // Connect and write timeout
	MaxPoolSize uint64        // Connection pool size
	AppName     string        // Client application name
}

// MongoRecorderOption represents a configuration function for MongoRecorderOptions.
type MongoRecorderOption func(*MongoRecorderOptions)

func WithMongoURI(uri string) MongoRecorderOption {
	return func(opts *MongoRecorderOptions) {
		opts.URI = uri
	}
}

func WithMongoDatabase(database string) MongoRecorderOption {
	return func(opts *MongoRecorderOptions) {
		opts.Database = database
	}
}

func WithMongoCollection(collection string) MongoRecorderOption {
	return func(opts *MongoRecorderOptions) {
		opts.Collection = collection
	}
}

func WithMongoTimeout(timeout time.Duration) MongoRecorderOption {
	return func(opts *MongoRecorderOptions) {
		opts.Timeout = timeout
	}
}

// MongoRecorder stores events as documents, one per event.
type MongoRecorder struct {
	client     *mongo.Client
	collection *mongo.Collection
	opts       MongoRecorderOptions
}

// NewMongoRecorder connects to MongoDB and indexes the collection by
// session and DAG.
func NewMongoRecorder(ctx context.Context, setters ...MongoRecorderOption) (*MongoRecorder, error) {
	opts := MongoRecorderOptions{
		Database:    "gotez",
		Collection:  "events",
		Timeout:     10 * time.Second,
		MaxPoolSize: 4,
		AppName:     "gotez",
	}
	for _, set := range setters {
		set(&opts)
	}
	if opts.URI == "" {
		return nil, &MongoRecorderError{Op: "validate_options", Err: fmt.Errorf("uri is required")}
	}

	clientOpts := options.Client().
		ApplyURI(opts.URI).
		SetMaxPoolSize(opts.MaxPoolSize).
		SetConnectTimeout(opts.Timeout).
		SetAppName(opts.AppName)

	connectCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, &MongoRecorderError{Op: "connect", Err: err}
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, &MongoRecorderError{Op: "ping", Err: err}
	}

	collection := client.Database(opts.Database).Collection(opts.Collection)
	_, err = collection.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "dag_id", Value: 1}, {Key: "time", Value: 1}},
	})
	if err != nil {
		client.Disconnect(ctx)
		return nil, &MongoRecorderError{Op: "create_index", Err: err}
	}

	return &MongoRecorder{client: client, collection: collection, opts: opts}, nil
}

// Record inserts one event document.
func (m *MongoRecorder) Record(ctx context.Context, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()
	if _, err := m.collection.InsertOne(ctx, eventDocument(ev)); err != nil {
		return &MongoRecorderError{Op: "insert", Err: err}
	}
	return nil
}

// Events returns the recorded events of one session in time order.
func (m *MongoRecorder) Events(ctx context.Context, sessionID string) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()
	cursor, err := m.collection.Find(ctx, bson.M{"session_id": sessionID},
		options.Find().SetSort(bson.D{{Key: "time", Value: 1}}))
	if err != nil {
		return nil, &MongoRecorderError{Op: "find", Err: err}
	}
	defer cursor.Close(ctx)

	var events []Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, &MongoRecorderError{Op: "decode", Err: err}
	}
	return events, nil
}

// Close disconnects the client.
func (m *MongoRecorder) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.Timeout)
	defer cancel()
	if err := m.client.Disconnect(ctx); err != nil {
		return &MongoRecorderError{Op: "disconnect", Err: err}
	}
	return nil
}

func eventDocument(ev Event) bson.M {
	doc := bson.M{
		"time":       ev.Time.UTC(),
		"type":       string(ev.Type),
		"session":    ev.Session,
		"session_id": ev.SessionID,
		"progress": bson.M{
			"total":     ev.Progress.Total,
			"succeeded": ev.Progress.Succeeded,
			"running":   ev.Progress.Running,
			"failed":    ev.Progress.Failed,
			"killed":    ev.Progress.Killed,
		},
	}
	if ev.ApplicationID != "" {
		doc["application_id"] = ev.ApplicationID
	}
	if ev.DAGName != "" {
		doc["dag_name"] = ev.DAGName
		doc["dag_id"] = ev.DAGID
	}
	if ev.State != "" {
		doc["state"] = ev.State
	}
	if len(ev.Diagnostics) > 0 {
		doc["diagnostics"] = ev.Diagnostics
	}
	return doc
}
