package main

import (
	"context"
	"flag"
	"os"
	"time"

	"go.uber.org/zap"

	"intranet/internal/config"
	"intranet/internal/database"
	"intranet/internal/domain/notification"
	"intranet/internal/pkg/logger"
)

type demo struct {
	typ      notification.Type
	title    string
	message  string
	priority notification.Priority
	meta     *notification.Metadata
}

var demos = []demo{
	{notification.TypeEventCreated, "Quarterly all-hands", "Friday 15:00 in the main hall", notification.PriorityMedium,
		&notification.Metadata{EntityType: "event", EntityID: "101", URL: "/events/101", OrgUnit: "Company"}},
	{notification.TypeJobPosted, "New opening: Backend Engineer", "Platform team is hiring", notification.PriorityLow,
		&notification.Metadata{EntityType: "job", EntityID: "55", URL: "/jobs/55", OrgUnit: "Engineering"}},
	{notification.TypePostLiked, "Aigerim liked your post", "", notification.PriorityLow,
		&notification.Metadata{EntityType: "post", EntityID: "900", URL: "/posts/900", ActorID: "12",
			ActorName: "Aigerim", ActorAvatar: "https://cdn.example.com/avatars/12.png"}},
	{notification.TypeMention, "Daniyar mentioned you", "@you can you review this?", notification.PriorityHigh,
		&notification.Metadata{EntityType: "comment", EntityID: "77", URL: "/posts/900#c77", ActorID: "31", ActorName: "Daniyar"}},
	{notification.TypeContentFlagged, "A post you moderate was flagged", "Reported as spam by 3 users", notification.PriorityUrgent,
		&notification.Metadata{EntityType: "post", EntityID: "901", URL: "/admin/moderation/901"}},
	{notification.TypeRoleChanged, "Your role changed", "You are now a team lead", notification.PriorityHigh, nil},
}

func main() {
	userID := flag.Int64("user", 1, "recipient user id")
	reset := flag.Bool("reset", false, "delete the user's notifications first")
	flag.Parse()

	cfg, err := config.LoadServer()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("DB connection failed", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("AutoMigrate failed", zap.Error(err))
	}

	if *reset {
		res := db.Where("user_id = ?", *userID).Delete(&notification.Record{})
		log.Info("cleaned old notifications", zap.Int64("deleted", res.RowsAffected))
	}

	service := notification.NewService(notification.NewRepository(db), log)
	ctx := context.Background()
	for i, d := range demos {
		n, err := service.Create(ctx, *userID, notification.CreateInput{
			Type:     d.typ,
			Title:    d.title,
			Message:  d.message,
			Priority: d.priority,
			Metadata: d.meta,
		})
		if err != nil {
			log.Fatal("create notification failed", zap.Int("index", i), zap.Error(err))
		}
		log.Info("created", zap.String("id", n.ID), zap.String("type", string(n.Type)))
		// distinct created_at for stable ordering
		time.Sleep(5 * time.Millisecond)
	}

	log.Info("seed completed", zap.Int64("user_id", *userID), zap.Int("count", len(demos)))
}
