package main

import (
	"bufio"
	"log"
	"os"
	"strings"

	"github.com/project-tktt/avature-crawler/internal/config"
	"github.com/project-tktt/avature-crawler/internal/discovery"
)

// Probes every candidate site root in the sites file and rewrites the
// file with only the live ones, so dead tenants never reach the crawl.
func main() {
	log.SetFlags(log.LstdFlags)

	cfg := config.Load()
	path := cfg.Files.SitesFile
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	candidates, err := loadLines(path)
	if err != nil {
		log.Fatalf("Load sites: %v", err)
	}
	log.Printf("Validating %d candidate sites", len(candidates))

	validator := discovery.NewValidator(cfg.Crawler.UserAgent, 30, cfg.Crawler.RequestTimeout)
	live := validator.Validate(candidates)

	log.Printf("Valid sites: %d", len(live))
	log.Printf("Failed sites: %d", len(candidates)-len(live))

	if err := os.WriteFile(path, []byte(strings.Join(live, "\n")+"\n"), 0o644); err != nil {
		log.Fatalf("Save sites: %v", err)
	}
	log.Printf("Saved %d valid sites to %s", len(live), path)
}

func loadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
