package logistics

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"guard-patrol-logistics-system/api/internal/models"
	"guard-patrol-logistics-system/api/internal/repos"
	"guard-patrol-logistics-system/shared/logx"
	"guard-patrol-logistics-system/shared/workflow"
)

type fakeStock struct {
	items  map[uuid.UUID]models.StockItem
	events []models.OutboxEvent
}

func (f *fakeStock) GetItemByID(_ context.Context, itemID uuid.UUID) (models.StockItem, error) {
	item, ok := f.items[itemID]
	if !ok {
		return models.StockItem{}, repos.ErrStockItemNotFound
	}
	return item, nil
}

func (f *fakeStock) Adjust(_ context.Context, itemID uuid.UUID, delta int64, _ string, _ string, outboxEvent models.OutboxEvent) (models.StockItem, error) {
	item, ok := f.items[itemID]
	if !ok {
		return models.StockItem{}, repos.ErrStockItemNotFound
	}
	next := item.Available + delta
	if next < 0 || next > item.Total {
		return models.StockItem{}, repos.ErrInsufficientStock
	}
	item.Available = next
	f.items[itemID] = item
	f.events = append(f.events, outboxEvent)
	return item, nil
}

type fakeDeliveries struct {
	stock      *fakeStock
	deliveries map[uuid.UUID]models.DeliveryRecord
	events     []models.OutboxEvent
}

func (f *fakeDeliveries) CommitDelivery(ctx context.Context, delivery models.DeliveryRecord, outboxEvent models.OutboxEvent) (models.DeliveryRecord, error) {
	if _, err := f.stock.Adjust(ctx, delivery.ItemID, -delivery.Quantity, "delivery", delivery.IssuedBy, outboxEvent); err != nil {
		return models.DeliveryRecord{}, err
	}
	f.deliveries[delivery.DeliveryID] = delivery
	f.events = append(f.events, outboxEvent)
	return delivery, nil
}

func (f *fakeDeliveries) RegisterReturn(ctx context.Context, deliveryID uuid.UUID, receiver string, notes string, outboxEvent models.OutboxEvent) (models.DeliveryRecord, error) {
	delivery, ok := f.deliveries[deliveryID]
	if !ok {
		return models.DeliveryRecord{}, repos.ErrDeliveryNotFound
	}
	if delivery.Status != workflow.DeliveryStatusDelivered {
		return models.DeliveryRecord{}, repos.ErrInvalidReturnState
	}
	if _, err := f.stock.Adjust(ctx, delivery.ItemID, delivery.Quantity, "return", receiver, outboxEvent); err != nil {
		return models.DeliveryRecord{}, err
	}
	delivery.Status = workflow.DeliveryStatusReturned
	if receiver != "" {
		delivery.Receiver = receiver
	}
	if notes != "" {
		delivery.Notes = notes
	}
	f.deliveries[deliveryID] = delivery
	f.events = append(f.events, outboxEvent)
	return delivery, nil
}

func (f *fakeDeliveries) MarkNotReceived(_ context.Context, deliveryID uuid.UUID, notes string) (models.DeliveryRecord, error) {
	delivery, ok := f.deliveries[deliveryID]
	if !ok {
		return models.DeliveryRecord{}, repos.ErrDeliveryNotFound
	}
	if delivery.Status != workflow.DeliveryStatusDelivered {
		return models.DeliveryRecord{}, repos.ErrInvalidReturnState
	}
	delivery.Status = workflow.DeliveryStatusNotReceived
	if notes != "" {
		delivery.Notes = notes
	}
	f.deliveries[deliveryID] = delivery
	return delivery, nil
}

func (f *fakeDeliveries) GetDeliveryByID(_ context.Context, deliveryID uuid.UUID) (models.DeliveryRecord, error) {
	delivery, ok := f.deliveries[deliveryID]
	if !ok {
		return models.DeliveryRecord{}, repos.ErrDeliveryNotFound
	}
	return delivery, nil
}

type fakeGuards struct {
	guards map[uuid.UUID]models.Guard
}

func (f *fakeGuards) GetGuardByID(_ context.Context, guardID uuid.UUID) (models.Guard, error) {
	guard, ok := f.guards[guardID]
	if !ok {
		return models.Guard{}, pgx.ErrNoRows
	}
	return guard, nil
}

type fakePosts struct {
	posts map[uuid.UUID]models.Post
}

func (f *fakePosts) GetPostByID(_ context.Context, postID uuid.UUID) (models.Post, error) {
	post, ok := f.posts[postID]
	if !ok {
		return models.Post{}, pgx.ErrNoRows
	}
	return post, nil
}

type fakeBlobs struct {
	paths []string
}

func (f *fakeBlobs) Store(_ context.Context, _ []byte, path string) (string, error) {
	f.paths = append(f.paths, path)
	return "http://media.local/" + path, nil
}

func (f *fakeBlobs) Delete(_ context.Context, _ string) error {
	return nil
}

func newTestService(t *testing.T) (*Service, uuid.UUID, uuid.UUID, *fakeStock, *fakeDeliveries, *fakeBlobs) {
	t.Helper()

	guardID := uuid.New()
	itemID := uuid.New()

	stock := &fakeStock{items: map[uuid.UUID]models.StockItem{
		itemID: {ItemID: itemID, Name: "Radio HT", Total: 10, Available: 10, Minimum: 2},
	}}
	deliveries := &fakeDeliveries{stock: stock, deliveries: make(map[uuid.UUID]models.DeliveryRecord)}
	guards := &fakeGuards{guards: map[uuid.UUID]models.Guard{
		guardID: {GuardID: guardID, FullName: "Bruno Costa", CallSign: "G-12", Status: repos.GuardStatusActive},
	}}
	blobs := &fakeBlobs{}

	service := NewService(stock, deliveries, guards, &fakePosts{posts: map[uuid.UUID]models.Post{}}, blobs, logx.New("logistics-test", "test", "", "error"))
	return service, guardID, itemID, stock, deliveries, blobs
}

func TestRegisterDeliveryDecrementsStock(t *testing.T) {
	service, guardID, itemID, stock, _, blobs := newTestService(t)

	delivery, err := service.RegisterDelivery(context.Background(), DeliveryInput{
		GuardID:   guardID,
		ItemID:    itemID,
		Quantity:  3,
		IssuedBy:  "Sgt. Lima",
		Receiver:  "Bruno Costa",
		Signature: []byte("png-bytes"),
	})
	if err != nil {
		t.Fatalf("delivery failed: %v", err)
	}
	if delivery.Status != workflow.DeliveryStatusDelivered {
		t.Fatalf("expected delivered status, got %q", delivery.Status)
	}
	if delivery.GuardName != "Bruno Costa" || delivery.GuardCallSign != "G-12" {
		t.Fatalf("expected guard snapshot, got %q / %q", delivery.GuardName, delivery.GuardCallSign)
	}
	if delivery.ItemName != "Radio HT" {
		t.Fatalf("expected item name snapshot, got %q", delivery.ItemName)
	}
	if stock.items[itemID].Available != 7 {
		t.Fatalf("expected available 7, got %d", stock.items[itemID].Available)
	}
	if delivery.SignatureURL == "" {
		t.Fatalf("expected signature url to be set")
	}
	if len(blobs.paths) != 1 || !strings.HasPrefix(blobs.paths[0], "deliveries/"+delivery.DeliveryID.String()+"/") {
		t.Fatalf("unexpected signature path: %#v", blobs.paths)
	}
}

func TestRegisterDeliveryInsufficientStock(t *testing.T) {
	service, guardID, itemID, stock, deliveries, _ := newTestService(t)

	_, err := service.RegisterDelivery(context.Background(), DeliveryInput{
		GuardID:  guardID,
		ItemID:   itemID,
		Quantity: 11,
	})
	if !errors.Is(err, repos.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	// Rejected delivery leaves no record and no stock change.
	if len(deliveries.deliveries) != 0 {
		t.Fatalf("expected no delivery records, got %d", len(deliveries.deliveries))
	}
	if stock.items[itemID].Available != 10 {
		t.Fatalf("expected untouched stock, got %d", stock.items[itemID].Available)
	}
}

func TestRegisterDeliveryRejectsNonPositiveQuantity(t *testing.T) {
	service, guardID, itemID, _, _, _ := newTestService(t)

	for _, quantity := range []int64{0, -2} {
		_, err := service.RegisterDelivery(context.Background(), DeliveryInput{
			GuardID:  guardID,
			ItemID:   itemID,
			Quantity: quantity,
		})
		if !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("quantity %d: expected ErrInvalidQuantity, got %v", quantity, err)
		}
	}
}

func TestRegisterReturnRestoresStock(t *testing.T) {
	service, guardID, itemID, stock, _, _ := newTestService(t)

	delivery, err := service.RegisterDelivery(context.Background(), DeliveryInput{
		GuardID:  guardID,
		ItemID:   itemID,
		Quantity: 4,
	})
	if err != nil {
		t.Fatalf("delivery failed: %v", err)
	}
	if stock.items[itemID].Available != 6 {
		t.Fatalf("expected available 6, got %d", stock.items[itemID].Available)
	}

	returned, err := service.RegisterReturn(context.Background(), delivery.DeliveryID, "Sgt. Lima", "all good")
	if err != nil {
		t.Fatalf("return failed: %v", err)
	}
	if returned.Status != workflow.DeliveryStatusReturned {
		t.Fatalf("expected returned status, got %q", returned.Status)
	}
	if stock.items[itemID].Available != 10 {
		t.Fatalf("expected available 10 after return, got %d", stock.items[itemID].Available)
	}

	// A second return of the same record is rejected and must not
	// inflate stock.
	if _, err := service.RegisterReturn(context.Background(), delivery.DeliveryID, "Sgt. Lima", ""); !errors.Is(err, repos.ErrInvalidReturnState) {
		t.Fatalf("expected ErrInvalidReturnState, got %v", err)
	}
	if stock.items[itemID].Available != 10 {
		t.Fatalf("expected available 10 after double return, got %d", stock.items[itemID].Available)
	}
}

func TestMarkNotReceivedKeepsStock(t *testing.T) {
	service, guardID, itemID, stock, _, _ := newTestService(t)

	delivery, err := service.RegisterDelivery(context.Background(), DeliveryInput{
		GuardID:  guardID,
		ItemID:   itemID,
		Quantity: 2,
	})
	if err != nil {
		t.Fatalf("delivery failed: %v", err)
	}

	disputed, err := service.MarkNotReceived(context.Background(), delivery.DeliveryID, "guard disputes receipt")
	if err != nil {
		t.Fatalf("mark not received failed: %v", err)
	}
	if disputed.Status != workflow.DeliveryStatusNotReceived {
		t.Fatalf("expected not_received status, got %q", disputed.Status)
	}
	if stock.items[itemID].Available != 8 {
		t.Fatalf("expected stock to stay at 8, got %d", stock.items[itemID].Available)
	}

	// A disputed delivery can no longer be returned.
	if _, err := service.RegisterReturn(context.Background(), delivery.DeliveryID, "Sgt. Lima", ""); !errors.Is(err, repos.ErrInvalidReturnState) {
		t.Fatalf("expected ErrInvalidReturnState, got %v", err)
	}
}

func TestMarkNotReceivedUnknownDelivery(t *testing.T) {
	service, _, _, _, _, _ := newTestService(t)

	// An unknown ID is a lookup miss, not a state conflict.
	if _, err := service.MarkNotReceived(context.Background(), uuid.New(), "never issued"); !errors.Is(err, repos.ErrDeliveryNotFound) {
		t.Fatalf("expected ErrDeliveryNotFound, got %v", err)
	}
}

func TestAdjustStockRespectsBounds(t *testing.T) {
	service, _, itemID, stock, _, _ := newTestService(t)

	item, err := service.AdjustStock(context.Background(), itemID, -10, "damage write-off", "Sgt. Lima")
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if item.Available != 0 {
		t.Fatalf("expected available 0, got %d", item.Available)
	}

	if _, err := service.AdjustStock(context.Background(), itemID, -1, "over-withdraw", "Sgt. Lima"); !errors.Is(err, repos.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if _, err := service.AdjustStock(context.Background(), itemID, 0, "noop", "Sgt. Lima"); !errors.Is(err, ErrZeroDelta) {
		t.Fatalf("expected ErrZeroDelta, got %v", err)
	}
	if _, err := service.AdjustStock(context.Background(), itemID, 11, "over-restock", "Sgt. Lima"); !errors.Is(err, repos.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock above total, got %v", err)
	}
	if stock.items[itemID].Available != 0 {
		t.Fatalf("expected available 0, got %d", stock.items[itemID].Available)
	}
}
