// Package main populates a running storefront with a sample catalog. It signs
// its own admin and shopper tokens with the service's JWT secret and goes
// through the public HTTP API, so every write passes the same validation and
// authorization as real traffic.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/utafrali/storefront/internal/auth"
	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/pkg/logger"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type productDef struct {
	name        string
	brand       string
	category    string
	description string
	image       string
	price       int64 // cents
	stock       int
}

var catalog = []productDef{
	{"Airpods Wireless Bluetooth Headphones", "Apple", "Electronics", "Bluetooth technology lets you connect it with compatible devices wirelessly.", "/images/airpods.jpg", 89_99, 10},
	{"iPhone 11 Pro 256GB Memory", "Apple", "Electronics", "Introducing the iPhone 11 Pro with a triple-camera system.", "/images/phone.jpg", 599_99, 7},
	{"Cannon EOS 80D DSLR Camera", "Cannon", "Electronics", "Characterized by versatile imaging specs.", "/images/camera.jpg", 929_99, 5},
	{"Sony Playstation 4 Pro White Version", "Sony", "Electronics", "The ultimate home entertainment center.", "/images/playstation.jpg", 399_99, 11},
	{"Logitech G-Series Gaming Mouse", "Logitech", "Electronics", "Get a better handle on your games with this gaming mouse.", "/images/mouse.jpg", 49_99, 7},
	{"Amazon Echo Dot 3rd Generation", "Amazon", "Electronics", "Meet Echo Dot, our most popular smart speaker with a fabric design.", "/images/alexa.jpg", 29_99, 0},
	{"Trail Running Shoes", "Stride", "Sports & Outdoors", "Lightweight shoes with a grippy outsole for mixed terrain.", "/images/shoes.jpg", 74_50, 24},
	{"Cast Iron Skillet 12in", "Forge", "Home & Kitchen", "Pre-seasoned skillet that goes from stovetop to oven.", "/images/skillet.jpg", 34_00, 15},
}

var shoppers = []struct{ id, name string }{
	{"seed-shopper-1", "Jane Doe"},
	{"seed-shopper-2", "John Roe"},
	{"seed-shopper-3", "Maria Poe"},
}

var comments = []string{
	"Exactly as described.",
	"Good value for the price.",
	"Arrived quickly and works well.",
	"Not bad, but could be better.",
	"Would buy again.",
}

type client struct {
	baseURL string
	http    *http.Client
}

func (c *client) post(ctx context.Context, path, token string, body any) (json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return envelope.Data, nil
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Warn("failed to load .env", slog.String("error", err.Error()))
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New("storefront-seed", cfg.LogLevel)

	baseURL := getEnv("STOREFRONT_URL", fmt.Sprintf("http://localhost:%d", cfg.HTTPPort))
	c := &client{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTExpiry())
	adminToken, err := jwtManager.GenerateAccessToken("seed-admin", "Seed Admin", auth.RoleAdmin)
	if err != nil {
		log.Error("failed to sign admin token", slog.String("error", err.Error()))
		os.Exit(1)
	}

	shopperTokens := make([]string, len(shoppers))
	for i, s := range shoppers {
		shopperTokens[i], err = jwtManager.GenerateAccessToken(s.id, s.name, "user")
		if err != nil {
			log.Error("failed to sign shopper token", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	log.Info("seeding products", slog.String("url", baseURL), slog.Int("count", len(catalog)))

	var productIDs []string
	for _, p := range catalog {
		data, err := c.post(ctx, "/api/v1/products", adminToken, map[string]any{
			"name":           p.name,
			"brand":          p.brand,
			"category":       p.category,
			"description":    p.description,
			"image":          p.image,
			"price":          p.price,
			"count_in_stock": p.stock,
		})
		if err != nil {
			log.Warn("product not created", slog.String("name", p.name), slog.String("error", err.Error()))
			continue
		}

		var created struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(data, &created); err != nil {
			log.Warn("unexpected product response", slog.String("name", p.name), slog.String("error", err.Error()))
			continue
		}
		productIDs = append(productIDs, created.ID)
		log.Info("product created", slog.String("id", created.ID), slog.String("name", p.name))
	}

	// Each shopper reviews a random subset; the storefront keeps one review
	// per shopper and product.
	reviews := 0
	for i, s := range shoppers {
		for _, id := range productIDs {
			if rand.Intn(2) == 0 {
				continue
			}
			_, err := c.post(ctx, "/api/v1/products/"+id+"/reviews", shopperTokens[i], map[string]any{
				"rating":  3 + rand.Intn(3),
				"comment": comments[rand.Intn(len(comments))],
			})
			if err != nil {
				log.Warn("review not created",
					slog.String("product_id", id),
					slog.String("user", s.name),
					slog.String("error", err.Error()),
				)
				continue
			}
			reviews++
		}
	}

	log.Info("seed complete", slog.Int("products", len(productIDs)), slog.Int("reviews", reviews))
}
