//cmd/seeder/main.go
package main

import (
    "context"
    "encoding/json"
    "flag"
    "fmt"
    "log"
    "os"

    "go.uber.org/zap"

    "github.com/unclebandit/crm-pipeline/internal/config"
    "github.com/unclebandit/crm-pipeline/internal/logger"
    "github.com/unclebandit/crm-pipeline/internal/model"
    "github.com/unclebandit/crm-pipeline/internal/queue"
)

func main() {
    file := flag.String("file", "seed/customers.json", "JSON array of customer payloads")
    flag.Parse()

    cfg, err := config.Load()
    if err != nil {
        log.Fatalf("config: %v", err)
    }
    lg, err := logger.New(cfg.ServiceName+"-seeder", cfg.Environment, cfg.LogLevel, cfg.LogFormat)
    if err != nil {
        log.Fatalf("logger: %v", err)
    }
    defer lg.Sync()

    customers, err := readSeed(*file)
    if err != nil {
        lg.Fatal("read seed", zap.String("file", *file), zap.Error(err))
    }

    ctx := context.Background()
    connector := queue.NewConnector(cfg.Bus, lg)
    defer connector.Close()
    bus, err := connector.Connect(ctx)
    if err != nil {
        lg.Fatal("bus", zap.Error(err))
    }
    defer bus.Close()

    published := 0
    for _, c := range customers {
        if err := queue.PublishJSON(ctx, bus, model.TopicCustomerIngestion, c); err != nil {
            lg.Error("publish customer", zap.String("email", c.Email), zap.Error(err))
            continue
        }
        published++
    }
    lg.Info("seeding completed", zap.Int("published", published), zap.Int("total", len(customers)))
}

func readSeed(path string) ([]model.CustomerPayload, error) {
    content, err := os.ReadFile(path)
    if err != nil {
        return nil, err
    }
    var customers []model.CustomerPayload
    if err := json.Unmarshal(content, &customers); err != nil {
        return nil, fmt.Errorf("decode %s: %w", path, err)
    }
    for i, c := range customers {
        if c.Email == "" {
            return nil, fmt.Errorf("entry %d has no email", i)
        }
    }
    return customers, nil
}
