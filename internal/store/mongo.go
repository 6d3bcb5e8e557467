package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"snacktrack-backend/internal/model"
)

const (
	machinesCollection      = "machines"
	productsCollection      = "products"
	salesCollection         = "sales"
	subscriptionsCollection = "push_subscriptions"
)

// mongoStore implements the Store interface on a MongoDB database. Every
// entity is one document; slots and sale lines are embedded arrays.
type mongoStore struct {
	db            *mongo.Database
	machines      *mongo.Collection
	products      *mongo.Collection
	sales         *mongo.Collection
	subscriptions *mongo.Collection
}

// NewMongoStore creates a store backed by db.
func NewMongoStore(db *mongo.Database) Store {
	return &mongoStore{
		db:            db,
		machines:      db.Collection(machinesCollection),
		products:      db.Collection(productsCollection),
		sales:         db.Collection(salesCollection),
		subscriptions: db.Collection(subscriptionsCollection),
	}
}

// EnsureMongoIndexes creates the secondary indexes the queries rely on.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		machinesCollection: {
			{Keys: bson.D{{Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "slots.product", Value: 1}}},
		},
		productsCollection: {
			{Keys: bson.D{{Key: "name", Value: 1}}},
		},
		salesCollection: {
			{Keys: bson.D{{Key: "machineId", Value: 1}, {Key: "createdAt", Value: 1}}},
			{Keys: bson.D{{Key: "createdAt", Value: 1}}},
		},
		subscriptionsCollection: {
			{Keys: bson.D{{Key: "machineIds", Value: 1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

// --- documents ---

type slotDoc struct {
	SlotCode string               `bson:"slotCode"`
	Product  *string              `bson:"product"`
	Quantity int                  `bson:"quantity"`
	Capacity int                  `bson:"capacity"`
	Price    primitive.Decimal128 `bson:"price"`
}

type machineDoc struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Location  string    `bson:"location"`
	Rows      int       `bson:"rows"`
	Cols      int       `bson:"cols"`
	Slots     []slotDoc `bson:"slots"`
	Status    string    `bson:"status"`
	Fullness  int       `bson:"fullness"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type productDoc struct {
	ID                string               `bson:"_id"`
	Name              string               `bson:"name"`
	Category          string               `bson:"category"`
	Price             primitive.Decimal128 `bson:"price"`
	Stock             int                  `bson:"stock"`
	AllocatedCapacity int                  `bson:"allocatedCapacity"`
	CreatedAt         time.Time            `bson:"createdAt"`
	UpdatedAt         time.Time            `bson:"updatedAt"`
}

type saleLineDoc struct {
	ProductID     string               `bson:"productId"`
	Quantity      int                  `bson:"quantity"`
	ProductProfit primitive.Decimal128 `bson:"productProfit"`
}

type saleDoc struct {
	ID        string               `bson:"_id"`
	MachineID *string              `bson:"machineId"`
	Date      string               `bson:"date"`
	Products  []saleLineDoc        `bson:"products"`
	AllProfit primitive.Decimal128 `bson:"allProfit"`
	CreatedAt time.Time            `bson:"createdAt"`
}

type subscriptionDoc struct {
	Endpoint   string    `bson:"_id"`
	P256DH     string    `bson:"p256dh"`
	Auth       string    `bson:"auth"`
	MachineIDs []string  `bson:"machineIds"`
	CreatedAt  time.Time `bson:"createdAt"`
}

func toDecimal128(d decimal.Decimal) primitive.Decimal128 {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.NewDecimal128(0, 0)
	}
	return v
}

func fromDecimal128(v primitive.Decimal128) decimal.Decimal {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

func newMachineDoc(m *model.Machine) machineDoc {
	slots := make([]slotDoc, len(m.Slots))
	for i, s := range m.Slots {
		slots[i] = slotDoc{
			SlotCode: s.SlotCode,
			Product:  s.Product,
			Quantity: s.Quantity,
			Capacity: s.Capacity,
			Price:    toDecimal128(s.Price),
		}
	}
	return machineDoc{
		ID:        m.ID,
		Name:      m.Name,
		Location:  m.Location,
		Rows:      m.Rows,
		Cols:      m.Cols,
		Slots:     slots,
		Status:    string(m.Status),
		Fullness:  m.Fullness,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func (d machineDoc) toModel() model.Machine {
	slots := make([]model.Slot, len(d.Slots))
	for i, s := range d.Slots {
		slots[i] = model.Slot{
			SlotCode: s.SlotCode,
			Product:  s.Product,
			Quantity: s.Quantity,
			Capacity: s.Capacity,
			Price:    fromDecimal128(s.Price),
		}
	}
	return model.Machine{
		ID:        d.ID,
		Name:      d.Name,
		Location:  d.Location,
		Rows:      d.Rows,
		Cols:      d.Cols,
		Slots:     slots,
		Status:    model.MachineStatus(d.Status),
		Fullness:  d.Fullness,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func newProductDoc(p *model.Product) productDoc {
	return productDoc{
		ID:                p.ID,
		Name:              p.Name,
		Category:          string(p.Category),
		Price:             toDecimal128(p.Price),
		Stock:             p.Stock,
		AllocatedCapacity: p.AllocatedCapacity,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func (d productDoc) toModel() model.Product {
	return model.Product{
		ID:                d.ID,
		Name:              d.Name,
		Category:          model.Category(d.Category),
		Price:             fromDecimal128(d.Price),
		Stock:             d.Stock,
		AllocatedCapacity: d.AllocatedCapacity,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

func newSaleDoc(s *model.Sale) saleDoc {
	lines := make([]saleLineDoc, len(s.Products))
	for i, l := range s.Products {
		lines[i] = saleLineDoc{ProductID: l.ProductID, Quantity: l.Quantity, ProductProfit: toDecimal128(l.ProductProfit)}
	}
	return saleDoc{
		ID:        s.ID,
		MachineID: s.MachineID,
		Date:      s.Date,
		Products:  lines,
		AllProfit: toDecimal128(s.AllProfit),
		CreatedAt: s.CreatedAt,
	}
}

func (d saleDoc) toModel() model.Sale {
	lines := make([]model.SaleLine, len(d.Products))
	for i, l := range d.Products {
		lines[i] = model.SaleLine{ProductID: l.ProductID, Quantity: l.Quantity, ProductProfit: fromDecimal128(l.ProductProfit)}
	}
	return model.Sale{
		ID:        d.ID,
		MachineID: d.MachineID,
		Date:      d.Date,
		Products:  lines,
		AllProfit: fromDecimal128(d.AllProfit),
		CreatedAt: d.CreatedAt,
	}
}

func (d subscriptionDoc) toModel() model.PushSubscription {
	return model.PushSubscription{
		Endpoint:   d.Endpoint,
		P256DH:     d.P256DH,
		Auth:       d.Auth,
		MachineIDs: d.MachineIDs,
		CreatedAt:  d.CreatedAt,
	}
}

func decodeOne[T any](res *mongo.SingleResult) (*T, error) {
	var doc T
	if err := res.Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

// --- machines ---

func (s *mongoStore) CreateMachine(ctx context.Context, m *model.Machine) error {
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	if _, err := s.machines.InsertOne(ctx, newMachineDoc(m)); err != nil {
		return fmt.Errorf("failed to create machine: %w", err)
	}
	return nil
}

func (s *mongoStore) GetMachine(ctx context.Context, id string) (*model.Machine, error) {
	doc, err := decodeOne[machineDoc](s.machines.FindOne(ctx, bson.M{"_id": id}))
	if err != nil {
		return nil, err
	}
	m := doc.toModel()
	return &m, nil
}

func (s *mongoStore) ListMachines(ctx context.Context) ([]model.Machine, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.machines.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	var docs []machineDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	machines := make([]model.Machine, len(docs))
	for i, d := range docs {
		machines[i] = d.toModel()
	}
	return machines, nil
}

func (s *mongoStore) SaveMachine(ctx context.Context, m *model.Machine) error {
	m.UpdatedAt = time.Now().UTC()
	doc := newMachineDoc(m)
	res, err := s.machines.UpdateOne(ctx, bson.M{"_id": m.ID}, bson.M{"$set": bson.M{
		"name":      doc.Name,
		"location":  doc.Location,
		"rows":      doc.Rows,
		"cols":      doc.Cols,
		"slots":     doc.Slots,
		"status":    doc.Status,
		"fullness":  doc.Fullness,
		"updatedAt": doc.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("failed to save machine %s: %w", m.ID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoStore) DeleteMachine(ctx context.Context, id string) error {
	res, err := s.machines.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete machine %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// --- products ---

func (s *mongoStore) CreateProduct(ctx context.Context, p *model.Product) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	if _, err := s.products.InsertOne(ctx, newProductDoc(p)); err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

func (s *mongoStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	doc, err := decodeOne[productDoc](s.products.FindOne(ctx, bson.M{"_id": id}))
	if err != nil {
		return nil, err
	}
	p := doc.toModel()
	return &p, nil
}

func (s *mongoStore) findProducts(ctx context.Context, filter bson.M) ([]model.Product, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.products.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []productDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	products := make([]model.Product, len(docs))
	for i, d := range docs {
		products[i] = d.toModel()
	}
	return products, nil
}

func (s *mongoStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.findProducts(ctx, bson.M{})
}

func (s *mongoStore) ListProductsByID(ctx context.Context, ids []string) ([]model.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.findProducts(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

func (s *mongoStore) UpdateProduct(ctx context.Context, p *model.Product) error {
	p.UpdatedAt = time.Now().UTC()
	res, err := s.products.UpdateOne(ctx, bson.M{"_id": p.ID}, bson.M{"$set": bson.M{
		"name":      p.Name,
		"category":  string(p.Category),
		"price":     toDecimal128(p.Price),
		"stock":     p.Stock,
		"updatedAt": p.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("failed to update product %s: %w", p.ID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoStore) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.products.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete product %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoStore) IncrementAllocatedCapacity(ctx context.Context, id string, delta int) (bool, error) {
	res, err := s.products.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"allocatedCapacity": delta}})
	if err != nil {
		return false, fmt.Errorf("failed to adjust allocated capacity of %s: %w", id, err)
	}
	return res.MatchedCount > 0, nil
}

func (s *mongoStore) SetAllocatedCapacity(ctx context.Context, id string, value int) error {
	res, err := s.products.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"allocatedCapacity": value}})
	if err != nil {
		return fmt.Errorf("failed to set allocated capacity of %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DecrementStock uses an aggregation-pipeline update so the floor at zero
// is applied inside the same single-document write.
func (s *mongoStore) DecrementStock(ctx context.Context, id string, qty int) (*model.Product, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"stock": bson.M{"$max": bson.A{0, bson.M{"$subtract": bson.A{"$stock", qty}}}},
		}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	doc, err := decodeOne[productDoc](s.products.FindOneAndUpdate(ctx, bson.M{"_id": id}, pipeline, opts))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to decrement stock of %s: %w", id, err)
	}
	p := doc.toModel()
	return &p, nil
}

// --- sales ---

func (s *mongoStore) CreateSale(ctx context.Context, sale *model.Sale) error {
	sale.CreatedAt = time.Now().UTC()
	if _, err := s.sales.InsertOne(ctx, newSaleDoc(sale)); err != nil {
		return fmt.Errorf("failed to create sale: %w", err)
	}
	return nil
}

func (s *mongoStore) ListSales(ctx context.Context, machineID string) ([]model.Sale, error) {
	filter := bson.M{}
	if machineID != "" {
		filter["machineId"] = machineID
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.sales.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []saleDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	sales := make([]model.Sale, len(docs))
	for i, d := range docs {
		sales[i] = d.toModel()
	}
	return sales, nil
}

// --- push subscriptions ---

func (s *mongoStore) PutSubscription(ctx context.Context, sub *model.PushSubscription) error {
	machineIDs := sub.MachineIDs
	if machineIDs == nil {
		machineIDs = []string{}
	}
	_, err := s.subscriptions.UpdateOne(ctx,
		bson.M{"_id": sub.Endpoint},
		bson.M{
			"$set":         bson.M{"p256dh": sub.P256DH, "auth": sub.Auth, "machineIds": machineIDs},
			"$setOnInsert": bson.M{"createdAt": time.Now().UTC()},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *mongoStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	doc, err := decodeOne[subscriptionDoc](s.subscriptions.FindOne(ctx, bson.M{"_id": endpoint}))
	if err != nil {
		return nil, err
	}
	sub := doc.toModel()
	return &sub, nil
}

func (s *mongoStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	_, err := s.subscriptions.DeleteOne(ctx, bson.M{"_id": endpoint})
	return err
}

func (s *mongoStore) findSubscriptions(ctx context.Context, filter bson.M) ([]model.PushSubscription, error) {
	cursor, err := s.subscriptions.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	var docs []subscriptionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	subs := make([]model.PushSubscription, len(docs))
	for i, d := range docs {
		subs[i] = d.toModel()
	}
	return subs, nil
}

func (s *mongoStore) SubscriptionsForMachine(ctx context.Context, machineID string) ([]model.PushSubscription, error) {
	return s.findSubscriptions(ctx, bson.M{"machineIds": machineID})
}

func (s *mongoStore) ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	return s.findSubscriptions(ctx, bson.M{})
}

// --- lifecycle ---

func (s *mongoStore) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

func (s *mongoStore) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}
