package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shtetl-dev/shtetl-browse/pkg/browse"
	"github.com/shtetl-dev/shtetl-browse/pkg/cache"
	"github.com/shtetl-dev/shtetl-browse/pkg/client"
	"github.com/shtetl-dev/shtetl-browse/pkg/filters"
	"github.com/shtetl-dev/shtetl-browse/pkg/geo"
	"github.com/shtetl-dev/shtetl-browse/pkg/tracking"
	"github.com/shtetl-dev/shtetl-browse/pkg/types"
)

var apiUrl = os.Getenv("API_URL")
var redisUrl = os.Getenv("REDIS_URL")
var redisPassword = os.Getenv("REDIS_PASSWORD")
var rabbitUrl = os.Getenv("RABBIT_URL")
var region = os.Getenv("REGION")

var (
	domainFlag   = flag.String("domain", "restaurants", "listing domain: restaurants, synagogues, mikvah, shtel-listings")
	queryFlag    = flag.String("q", "", "free text search")
	categoryFlag = flag.String("category", "", "category filter")
	agencyFlag   = flag.String("agency", "", "certifying agency filter")
	ratingFlag   = flag.Float64("rating", 0, "minimum rating (0-5)")
	distanceFlag = flag.Float64("distance", 0, "maximum distance in miles")
	hoursFlag    = flag.String("hours", "", "hours bucket: morning, afternoon, evening, lateNight, openNow")
	openFlag     = flag.Bool("open", false, "only venues open now")
	nearFlag     = flag.String("near", "", "device position as lat,lng; enables near-me sorting")
	limitFlag    = flag.Int("limit", 20, "page size")
	pagesFlag    = flag.Int("pages", 3, "maximum number of pages to walk")
	timeoutFlag  = flag.Duration("timeout", 10*time.Second, "per-fetch timeout (5s-20s)")
)

func main() {
	flag.Parse()
	if apiUrl == "" {
		apiUrl = "http://localhost:8080"
	}
	domain := types.Domain(*domainFlag)

	var src browse.Source = client.New(apiUrl, domain, client.WithTimeout(*timeoutFlag))
	if redisUrl != "" {
		pageCache := cache.New(redisUrl, redisPassword, 0)
		defer pageCache.Close()
		src = cache.NewCachedSource(src, pageCache, string(domain), 5*time.Minute)
	}

	var trk tracking.Tracking = tracking.NoOp{}
	if rabbitUrl != "" {
		rt, err := tracking.NewRabbitTracking(rabbitUrl, region)
		if err != nil {
			log.Printf("tracking disabled: %v", err)
		} else {
			trk = rt
			defer rt.Close()
		}
	}

	opts := browse.Options{
		Domain:        domain,
		Limit:         *limitFlag,
		FetchTimeout:  *timeoutFlag,
		DebounceDelay: 50 * time.Millisecond,
		Tracking:      trk,
	}
	if loc, ok := parseNear(*nearFlag); ok {
		opts.Location = &geo.Static{Pos: geo.Position{Point: loc, At: time.Now()}}
	}

	session := browse.NewSession(src, opts)
	defer session.Close()

	updates := make(chan browse.Snapshot, 16)
	unsubscribe := session.Subscribe(func(snap browse.Snapshot) {
		select {
		case updates <- snap:
		default:
		}
	})
	defer unsubscribe()

	setIfPresent(session, filters.KeyQuery, *queryFlag)
	setIfPresent(session, filters.KeyCategory, *categoryFlag)
	setIfPresent(session, filters.KeyAgency, *agencyFlag)
	setIfPresent(session, filters.KeyHours, *hoursFlag)
	if *ratingFlag > 0 {
		session.SetFilter(filters.KeyRatingMin, *ratingFlag)
	}
	if *distanceFlag > 0 {
		session.SetFilter(filters.KeyDistance, *distanceFlag)
	}
	if *openFlag {
		session.SetFilter(filters.KeyOpenNow, true)
	}
	if opts.Location != nil {
		session.SetFilter(filters.KeyNearMe, true)
	}

	if err := session.ApplyFilters(); err != nil {
		log.Fatalf("invalid filters: %v", err)
	}

	pages := 0
	manualRetries := 0
	for pages < *pagesFlag {
		snap, ok := waitSettled(updates, *timeoutFlag+5*time.Second)
		if !ok {
			log.Fatalf("no response from %s", apiUrl)
		}
		if snap.Err != nil {
			log.Printf("fetch error: %v", snap.Err)
			if snap.ShowManualLoad && manualRetries < 1 {
				manualRetries++
				log.Printf("retrying manually")
				session.ManualLoad()
				continue
			}
			break
		}
		pages++
		printPage(session, snap, pages)
		if !snap.HasMore {
			break
		}
		session.SentinelVisible()
	}
}

// waitSettled drains snapshots until a non-loading one that reflects a
// completed fetch arrives. The commit notification itself (empty list, no
// error, nothing fetched yet) is skipped.
func waitSettled(updates <-chan browse.Snapshot, timeout time.Duration) (browse.Snapshot, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case snap := <-updates:
			if snap.Loading {
				continue
			}
			if len(snap.Listings) == 0 && snap.Err == nil && snap.HasMore && snap.Total < 0 {
				continue
			}
			return snap, true
		case <-deadline:
			return browse.Snapshot{}, false
		}
	}
}

func printPage(session *browse.Session, snap browse.Snapshot, page int) {
	fmt.Printf("--- page %d (%d listings", page, len(snap.Listings))
	if snap.Total >= 0 {
		fmt.Printf(" of %d", snap.Total)
	}
	fmt.Println(")")
	start := (page - 1) * *limitFlag
	if start > len(snap.Listings) {
		start = len(snap.Listings)
	}
	for _, l := range snap.Listings[start:] {
		line := l.Name
		if l.Category != "" {
			line += " [" + l.Category + "]"
		}
		if d := session.DistanceFor(l); d != "" {
			line += " " + d
		}
		if l.Gemach {
			line += " (gemach)"
		}
		fmt.Println("  " + line)
	}
}

func setIfPresent(session *browse.Session, key, value string) {
	if value != "" {
		session.SetFilter(key, value)
	}
}

func parseNear(s string) (geo.Point, bool) {
	if s == "" {
		return geo.Point{}, false
	}
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return geo.Point{}, false
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return geo.Point{}, false
	}
	return geo.Point{Lat: lat, Lng: lng}, true
}
