package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lendflow/backend/internal/config"
	"github.com/lendflow/backend/internal/core"
	"github.com/lendflow/backend/internal/database"
)

// The lenderload binary replaces the lender reference catalogue from
// CSV exports. The swap is transactional: a bad file leaves the old
// catalogue untouched.
//
// products.csv header:
//   lender_name,product_name,program_type,is_active,policy_available,
//   min_cibil_score,min_vintage_years,min_turnover_annual,min_abb,
//   age_min,age_max,max_ticket_size,max_dpd_30plus,
//   eligible_entity_types,required_documents,enforces_geo
// List columns use | as the separator. Empty cells mean "threshold not
// published".
//
// pincodes.csv header: lender_name,product_name,pincode
func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	productsPath := flag.String("products", "", "lender products CSV (required)")
	pincodesPath := flag.String("pincodes", "", "serviceable pincodes CSV (optional)")
	flag.Parse()

	if *productsPath == "" {
		log.Fatal("-products is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	store, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer store.Close()

	products, err := loadProducts(*productsPath)
	if err != nil {
		log.Fatalf("products: %v", err)
	}

	pincodes := map[string][]string{}
	if *pincodesPath != "" {
		pincodes, err = loadPincodes(*pincodesPath)
		if err != nil {
			log.Fatalf("pincodes: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := store.ReplaceLenderData(ctx, products, pincodes); err != nil {
		log.Fatalf("replace lender data: %v", err)
	}

	pinCount := 0
	for _, pins := range pincodes {
		pinCount += len(pins)
	}
	log.Printf("loaded %d lender products, %d pincode rows", len(products), pinCount)
}

func loadProducts(path string) ([]core.LenderProduct, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	for _, col := range []string{"lender_name", "product_name", "program_type",
		"is_active", "policy_available"} {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("%s is missing column %q", path, col)
		}
	}

	var products []core.LenderProduct
	for i, row := range rows {
		get := func(col string) string {
			idx, ok := header[col]
			if !ok {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		line := i + 2

		p := core.LenderProduct{
			LenderName:  get("lender_name"),
			ProductName: get("product_name"),
			ProgramType: core.ProgramType(get("program_type")),
		}
		if p.LenderName == "" || p.ProductName == "" {
			return nil, fmt.Errorf("line %d: lender_name and product_name are required", line)
		}
		switch p.ProgramType {
		case core.ProgramBanking, core.ProgramGST, core.ProgramHybrid:
		default:
			return nil, fmt.Errorf("line %d: bad program_type %q", line, p.ProgramType)
		}

		p.IsActive = parseBool(get("is_active"))
		p.PolicyAvailable = parseBool(get("policy_available"))
		p.EnforcesGeo = parseBool(get("enforces_geo"))

		if p.MinCIBILScore, err = optInt(get("min_cibil_score")); err != nil {
			return nil, fmt.Errorf("line %d: min_cibil_score: %w", line, err)
		}
		if p.MinVintageYears, err = optFloat(get("min_vintage_years")); err != nil {
			return nil, fmt.Errorf("line %d: min_vintage_years: %w", line, err)
		}
		if p.MinTurnoverAnnual, err = optFloat(get("min_turnover_annual")); err != nil {
			return nil, fmt.Errorf("line %d: min_turnover_annual: %w", line, err)
		}
		if p.MinABB, err = optFloat(get("min_abb")); err != nil {
			return nil, fmt.Errorf("line %d: min_abb: %w", line, err)
		}
		if p.AgeMin, err = optInt(get("age_min")); err != nil {
			return nil, fmt.Errorf("line %d: age_min: %w", line, err)
		}
		if p.AgeMax, err = optInt(get("age_max")); err != nil {
			return nil, fmt.Errorf("line %d: age_max: %w", line, err)
		}
		if p.MaxTicketSize, err = optFloat(get("max_ticket_size")); err != nil {
			return nil, fmt.Errorf("line %d: max_ticket_size: %w", line, err)
		}
		if p.MaxDPD30Plus, err = optInt(get("max_dpd_30plus")); err != nil {
			return nil, fmt.Errorf("line %d: max_dpd_30plus: %w", line, err)
		}

		p.EligibleEntityTypes = splitList(get("eligible_entity_types"))
		for _, d := range splitList(get("required_documents")) {
			p.RequiredDocuments = append(p.RequiredDocuments, core.DocumentType(d))
		}

		products = append(products, p)
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("%s contains no products", path)
	}
	return products, nil
}

func loadPincodes(path string) (map[string][]string, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	pincodes := make(map[string][]string)
	for i, row := range rows {
		lender := strings.TrimSpace(row[header["lender_name"]])
		product := strings.TrimSpace(row[header["product_name"]])
		pin := strings.TrimSpace(row[header["pincode"]])
		if len(pin) != 6 {
			return nil, fmt.Errorf("line %d: bad pincode %q", i+2, pin)
		}
		key := lender + "/" + product
		pincodes[key] = append(pincodes[key], pin)
	}
	return pincodes, nil
}

// readCSV returns data rows plus a column-name index built from the
// header row.
func readCSV(path string) ([][]string, map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, nil, fmt.Errorf("%s has no data rows", path)
	}

	header := make(map[string]int, len(records[0]))
	for i, col := range records[0] {
		header[strings.ToLower(strings.TrimSpace(col))] = i
	}
	return records[1:], header, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "y":
		return true
	}
	return false
}

func optInt(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func optFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, "|") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
