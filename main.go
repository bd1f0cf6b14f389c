package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

/* ======================
   Request / Response Types
   ====================== */

type BidRequest struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName,omitempty"`
	Amount      int64  `json:"amount"`
}

type BidResponse struct {
	OK            bool             `json:"ok"`
	Error         string           `json:"error,omitempty"`
	Auction       *AuctionSnapshot `json:"auction,omitempty"`
	PlayerBalance int64            `json:"playerBalance,omitempty"`
}

type ClaimRequest struct {
	PlayerID    string `json:"playerId"`
	Index       *int   `json:"index,omitempty"`
	Disposition string `json:"disposition"`
}

type ClaimResponse struct {
	OK             bool            `json:"ok"`
	Error          string          `json:"error,omitempty"`
	Claimed        *PendingReward  `json:"claimed,omitempty"`
	Disposition    string          `json:"disposition,omitempty"`
	Balance        int64           `json:"balance,omitempty"`
	OwnedCars      []string        `json:"ownedCars,omitempty"`
	PendingRewards []PendingReward `json:"pendingRewards"`
	FleetCar       *FleetCar       `json:"fleetCar,omitempty"`
	SoldFor        int64           `json:"soldFor,omitempty"`
}

type RewardsResponse struct {
	OK             bool            `json:"ok"`
	Error          string          `json:"error,omitempty"`
	PendingRewards []PendingReward `json:"pendingRewards"`
}

type PlayerResponse struct {
	OK             bool            `json:"ok"`
	Error          string          `json:"error,omitempty"`
	PlayerID       string          `json:"playerId,omitempty"`
	DisplayName    string          `json:"displayName,omitempty"`
	Balance        int64           `json:"balance"`
	Fuel           int64           `json:"fuel"`
	Stamina        int64           `json:"stamina"`
	OwnedCars      []string        `json:"ownedCars"`
	Fleet          []FleetCar      `json:"fleet"`
	PendingRewards []PendingReward `json:"pendingRewards"`
}

type RideCompleteRequest struct {
	PlayerID   string `json:"playerId"`
	DistanceKm int    `json:"distanceKm"`
}

type RideCompleteResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Fare    int64  `json:"fare,omitempty"`
	Balance int64  `json:"balance,omitempty"`
	Fuel    int64  `json:"fuel,omitempty"`
	Stamina int64  `json:"stamina,omitempty"`
}

type BuyFuelRequest struct {
	PlayerID string `json:"playerId"`
	Liters   int    `json:"liters"`
}

type BuyFuelResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Cost    int64  `json:"cost,omitempty"`
	Balance int64  `json:"balance,omitempty"`
	Fuel    int64  `json:"fuel,omitempty"`
}

type LootboxRequest struct {
	PlayerID string `json:"playerId"`
}

type LootboxResponse struct {
	OK        bool           `json:"ok"`
	Error     string         `json:"error,omitempty"`
	PricePaid int64          `json:"pricePaid,omitempty"`
	Reward    *PendingReward `json:"reward,omitempty"`
	Balance   int64          `json:"balance,omitempty"`
}

type NotificationsResponse struct {
	OK            bool               `json:"ok"`
	Error         string             `json:"error,omitempty"`
	Notifications []NotificationItem `json:"notifications"`
}

type NotificationsReadRequest struct {
	PlayerID string `json:"playerId"`
}

type SimpleResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

/* ======================
   main()
   ====================== */

func main() {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatal("failed to open database:", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Fatal("failed to ping database:", err)
	}
	log.Println("Connected to PostgreSQL")

	if err := ensureSchema(db); err != nil {
		log.Fatal("Failed to ensure schema:", err)
	}
	if err := LoadAuctionSettings(db); err != nil {
		log.Println("Failed to load auction settings:", err)
	}

	catalogPath := os.Getenv("CATALOG_PATH")
	if catalogPath == "" {
		catalogPath = "./catalog.yaml"
	}
	catalog, err := LoadCatalog(catalogPath)
	if err != nil {
		log.Fatal("Failed to load car catalog:", err)
	}

	hub := NewHub()
	notifier := NewNotificationCenter(db, hub)
	house := NewAuctionHouse(
		&pgLedger{db: db},
		notifier,
		catalog,
		GetAuctionSettings,
		func(playerID string, eventType string, details map[string]interface{}) {
			logActivity(db, playerID, eventType, details)
		},
	)

	ctx := context.Background()
	lockConn, leader, err := acquireLeaderLock(ctx, db)
	if err != nil {
		log.Fatal("Failed to acquire leader lock:", err)
	}
	if leader {
		leaderLockConn = lockConn
		log.Println("Leader lock acquired; running auction rounds")
		go house.Run()
	} else {
		log.Println("Leader lock held by another instance; bids served elsewhere")
		if lockConn != nil {
			_ = lockConn.Close()
		}
	}

	startAuctionBroadcast(hub, house)

	mux := http.NewServeMux()
	registerRoutes(mux, db, house, hub, catalog)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	addr := "0.0.0.0:" + port
	log.Println("Listening on", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal("server failed:", err)
	}
}

/* ======================
   Routes
   ====================== */

func registerRoutes(mux *http.ServeMux, db *sql.DB, house *AuctionHouse, hub *Hub, catalog *Catalog) {
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/player", playerHandler(db))
	mux.HandleFunc("/auction", auctionHandler(house))
	mux.HandleFunc("/auction/bid", bidHandler(db, house))
	mux.HandleFunc("/rewards", rewardsHandler(db))
	mux.HandleFunc("/rewards/claim", claimRewardHandler(db))
	mux.HandleFunc("/ride/complete", rideCompleteHandler(db))
	mux.HandleFunc("/fuel/buy", buyFuelHandler(db))
	mux.HandleFunc("/lootbox/open", lootboxHandler(db, catalog))
	mux.HandleFunc("/notifications", notificationsHandler(db))
	mux.HandleFunc("/notifications/read", notificationsReadHandler(db))
	mux.HandleFunc("/ws", wsHandler(hub, house))

	mux.HandleFunc("/admin/auction-settings", requireOperator(adminAuctionSettingsHandler(db, catalog)))
}
