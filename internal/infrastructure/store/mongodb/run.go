package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"graphgen/internal/domain/entity"
	"graphgen/internal/domain/repository"
	"graphgen/internal/infrastructure/metrics"
)

type MongoRunRepo struct {
	runsCol *mongo.Collection
}

var _ repository.RunRepository = (*MongoRunRepo)(nil)

func NewMongoRunRepo(db *mongo.Database) *MongoRunRepo {
	col := db.Collection("runs")

	_, _ = col.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{Keys: bson.D{bson.E{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{bson.E{Key: "created_at", Value: -1}}},
	})

	return &MongoRunRepo{
		runsCol: col,
	}
}

func (r *MongoRunRepo) Create(ctx context.Context, run *entity.Run) error {
	metrics.IncStoreOp("mongo", "put")

	_, err := r.runsCol.InsertOne(ctx, run)
	if err != nil {
		metrics.IncError("mongo_run_repo", "create_error")
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

func (r *MongoRunRepo) GetByID(ctx context.Context, id string) (*entity.Run, error) {
	metrics.IncStoreOp("mongo", "get")

	var run entity.Run
	err := r.runsCol.FindOne(ctx, bson.M{"id": id}).Decode(&run)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", repository.ErrRunNotFound, id)
		}
		metrics.IncError("mongo_run_repo", "get_error")
		return nil, err
	}
	return &run, nil
}

func (r *MongoRunRepo) List(ctx context.Context) ([]*entity.Run, error) {
	metrics.IncStoreOp("mongo", "list")

	opts := options.Find().SetSort(bson.D{bson.E{Key: "created_at", Value: -1}})
	cur, err := r.runsCol.Find(ctx, bson.D{}, opts)
	if err != nil {
		metrics.IncError("mongo_run_repo", "list_error")
		return nil, err
	}
	defer func() {
		err := cur.Close(ctx)
		if err != nil {
			log.Printf("close cursor err: %s", err)
		}
	}()

	var runs []*entity.Run
	for cur.Next(ctx) {
		var run entity.Run
		if err := cur.Decode(&run); err != nil {
			metrics.IncError("mongo_run_repo", "list_decode_error")
			return nil, err
		}
		runs = append(runs, &run)
	}
	if err := cur.Err(); err != nil {
		metrics.IncError("mongo_run_repo", "list_cursor_error")
		return nil, err
	}
	return runs, nil
}

func (r *MongoRunRepo) Update(ctx context.Context, run *entity.Run) error {
	metrics.IncStoreOp("mongo", "put")

	run.UpdatedAt = time.Now().UTC()
	res, err := r.runsCol.ReplaceOne(ctx, bson.M{"id": run.ID}, run)
	if err != nil {
		metrics.IncError("mongo_run_repo", "update_error")
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", repository.ErrRunNotFound, run.ID)
	}
	return nil
}

func (r *MongoRunRepo) Delete(ctx context.Context, id string) error {
	metrics.IncStoreOp("mongo", "delete")

	res, err := r.runsCol.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		metrics.IncError("mongo_run_repo", "delete_error")
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", repository.ErrRunNotFound, id)
	}
	return nil
}
