package main

import (
	"errors"
	"fmt"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"
)

// sellPriceRatioPct is applied to a car's purchase price when a pending
// reward is sold instead of claimed. Integer math floors the result.
const sellPriceRatioPct = 60

type CarMeta struct {
	ID            string `yaml:"id" json:"id"`
	Name          string `yaml:"name" json:"name"`
	Image         string `yaml:"image" json:"image,omitempty"`
	PurchasePrice int64  `yaml:"purchasePrice" json:"purchasePrice"`
}

type Catalog struct {
	cars []CarMeta
	byID map[string]CarMeta
}

type catalogFile struct {
	Cars []CarMeta `yaml:"cars"`
}

func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseCatalog(data)
}

func parseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Cars) == 0 {
		return nil, errors.New("catalog has no cars")
	}

	c := &Catalog{byID: make(map[string]CarMeta)}
	for _, car := range file.Cars {
		if car.ID == "" || car.Name == "" {
			return nil, fmt.Errorf("catalog entry missing id or name: %+v", car)
		}
		if car.PurchasePrice <= 0 {
			return nil, fmt.Errorf("catalog car %s has non-positive price", car.ID)
		}
		if _, exists := c.byID[car.ID]; exists {
			return nil, fmt.Errorf("catalog has duplicate car id %s", car.ID)
		}
		c.byID[car.ID] = car
		c.cars = append(c.cars, car)
	}
	return c, nil
}

func (c *Catalog) Meta(id string) (CarMeta, bool) {
	car, ok := c.byID[id]
	return car, ok
}

// Pick returns the override car when one is configured and known,
// otherwise a uniform random pick from the catalog.
func (c *Catalog) Pick(overrideID string) (CarMeta, bool) {
	if overrideID != "" {
		if car, ok := c.byID[overrideID]; ok {
			return car, true
		}
	}
	if len(c.cars) == 0 {
		return CarMeta{}, false
	}
	return c.cars[rand.Intn(len(c.cars))], true
}

func sellPriceFor(purchasePrice int64) int64 {
	return purchasePrice * sellPriceRatioPct / 100
}
