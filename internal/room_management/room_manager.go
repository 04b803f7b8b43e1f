package room_management

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"velvetcode/internal/models"
)

const (
	ActivityChannel  = "room_activity"
	ProvisionChannel = "room_provision"

	roomTTL      = 24 * time.Hour
	redisTimeout = 2 * time.Second
)

var ErrRoomNotFound = errors.New("room not found")

// RoomManager mirrors room lifecycle into Redis: a status hash per room, an
// activity channel for created/stats events, and a provision channel other
// services use to pre-create rooms.
type RoomManager struct {
	rdb *redis.Client
	log *zap.Logger

	mu    sync.RWMutex
	known map[string]*models.RoomInfo
}

func NewRoomManager(redisAddr string, log *zap.Logger) *RoomManager {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	if log == nil {
		log = zap.NewNop()
	}
	return &RoomManager{
		rdb:   rdb,
		log:   log,
		known: make(map[string]*models.RoomInfo),
	}
}

func (rm *RoomManager) Ping(ctx context.Context) error {
	return rm.rdb.Ping(ctx).Err()
}

func (rm *RoomManager) Close() error {
	return rm.rdb.Close()
}

// RoomCreated records a new room and announces it on the activity channel.
func (rm *RoomManager) RoomCreated(ctx context.Context, roomID string) error {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	now := time.Now().UTC().Format(time.RFC3339)
	info := &models.RoomInfo{RoomID: roomID, Status: "active", CreatedAt: now}

	rm.mu.Lock()
	rm.known[roomID] = info
	rm.mu.Unlock()

	if err := rm.updateRoomStatusInRedis(ctx, info); err != nil {
		return err
	}
	return rm.publish(ctx, models.ActivityEvent{
		Type:   models.ActivityRoomCreated,
		RoomID: roomID,
		At:     now,
	})
}

// TouchRoom refreshes the member count and expiry of a room's status hash.
func (rm *RoomManager) TouchRoom(ctx context.Context, roomID string, members int) error {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	rm.mu.Lock()
	info, ok := rm.known[roomID]
	if !ok {
		info = &models.RoomInfo{RoomID: roomID, Status: "active", CreatedAt: time.Now().UTC().Format(time.RFC3339)}
		rm.known[roomID] = info
	}
	info.Members = members
	info.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	snapshot := *info
	rm.mu.Unlock()

	return rm.updateRoomStatusInRedis(ctx, &snapshot)
}

// PublishStats announces process-wide room and member counts.
func (rm *RoomManager) PublishStats(ctx context.Context, rooms, members int) error {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	return rm.publish(ctx, models.ActivityEvent{
		Type:    models.ActivityRoomStats,
		Rooms:   rooms,
		Members: members,
		At:      time.Now().UTC().Format(time.RFC3339),
	})
}

func (rm *RoomManager) publish(ctx context.Context, event models.ActivityEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal activity event: %w", err)
	}
	if err := rm.rdb.Publish(ctx, ActivityChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

func (rm *RoomManager) updateRoomStatusInRedis(ctx context.Context, info *models.RoomInfo) error {
	roomKey := "room:" + info.RoomID

	fields := map[string]interface{}{
		"roomId":    info.RoomID,
		"status":    info.Status,
		"members":   info.Members,
		"createdAt": info.CreatedAt,
	}
	if info.UpdatedAt != "" {
		fields["updatedAt"] = info.UpdatedAt
	}
	pipe := rm.rdb.TxPipeline()
	pipe.HSet(ctx, roomKey, fields)
	pipe.Expire(ctx, roomKey, roomTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store room %s: %w", info.RoomID, err)
	}
	return nil
}

// GetRoomStatus returns the status record for a room, preferring the local
// copy and falling back to Redis.
func (rm *RoomManager) GetRoomStatus(ctx context.Context, roomID string) (*models.RoomInfo, error) {
	rm.mu.RLock()
	info, ok := rm.known[roomID]
	if ok {
		copied := *info
		rm.mu.RUnlock()
		return &copied, nil
	}
	rm.mu.RUnlock()

	return rm.fetchRoomStatusFromRedis(ctx, roomID)
}

func (rm *RoomManager) fetchRoomStatusFromRedis(ctx context.Context, roomID string) (*models.RoomInfo, error) {
	result := rm.rdb.HGetAll(ctx, "room:"+roomID)
	if result.Err() != nil {
		return nil, fmt.Errorf("failed to get room from Redis: %w", result.Err())
	}
	fields := result.Val()
	if len(fields) == 0 {
		return nil, ErrRoomNotFound
	}
	members, _ := strconv.Atoi(fields["members"])
	return &models.RoomInfo{
		RoomID:    fields["roomId"],
		Status:    fields["status"],
		Members:   members,
		CreatedAt: fields["createdAt"],
		UpdatedAt: fields["updatedAt"],
	}, nil
}

// SubscribeToProvisions calls provision for every room id published on the
// provision channel until ctx is cancelled or the connection closes.
func (rm *RoomManager) SubscribeToProvisions(ctx context.Context, provision func(roomID string)) {
	subscriber := rm.rdb.Subscribe(ctx, ProvisionChannel)
	defer subscriber.Close()
	ch := subscriber.Channel()

	rm.log.Info("subscribed to room provisioning", zap.String("channel", ProvisionChannel))

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			rm.handleProvisionPayload(msg.Payload, provision)
		}
	}
}

func (rm *RoomManager) handleProvisionPayload(payload string, provision func(roomID string)) {
	roomID, err := parseProvision(payload)
	if err != nil {
		rm.log.Warn("invalid provision payload", zap.String("payload", payload), zap.Error(err))
		return
	}
	rm.log.Info("provisioning room", zap.String("room_id", roomID))
	provision(roomID)
}

// parseProvision accepts {"roomId": "..."} or a plain room id.
func parseProvision(payload string) (string, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "{") {
		var req models.JoinRequest
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return "", err
		}
		payload = strings.TrimSpace(req.RoomID)
	}
	if payload == "" {
		return "", errors.New("empty room id")
	}
	return payload, nil
}
