package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/farandaway89/scada-ai-system/internal/models"
)

func reading(sensorID string, value float64, ts time.Time) models.Reading {
	return models.Reading{
		SensorID:  sensorID,
		Value:     value,
		Unit:      "°C",
		Timestamp: ts,
		Quality:   models.QualityGood,
	}
}

func TestLatestReflectsMostRecentPublish(t *testing.T) {
	c := New(10)
	base := time.Now()

	for i := 0; i < 5; i++ {
		c.Publish(reading("T001", float64(20+i), base.Add(time.Duration(i)*time.Second)))
	}

	latest, ok := c.Latest("T001")
	if !ok {
		t.Fatal("expected a latest reading")
	}
	if latest.Value != 24 {
		t.Fatalf("latest value = %.1f, want 24", latest.Value)
	}
}

func TestLatestUnknownSensor(t *testing.T) {
	c := New(10)
	if _, ok := c.Latest("nope"); ok {
		t.Fatal("expected no reading for unknown sensor")
	}
}

func TestWindowWrapsInArrivalOrder(t *testing.T) {
	c := New(3)
	base := time.Now()

	for i := 0; i < 5; i++ {
		c.Publish(reading("P001", float64(i), base.Add(time.Duration(i)*time.Second)))
	}

	window := c.Window("P001")
	if len(window) != 3 {
		t.Fatalf("window len = %d, want 3", len(window))
	}
	for i, want := range []float64{2, 3, 4} {
		if window[i].Value != want {
			t.Fatalf("window[%d] = %.1f, want %.1f", i, window[i].Value, want)
		}
	}
}

func TestRateOfChange(t *testing.T) {
	c := New(10)
	base := time.Now()

	c.Publish(reading("F001", 100, base))
	c.Publish(reading("F001", 110, base.Add(5*time.Second)))

	rate, ok := c.RateOfChange("F001")
	if !ok {
		t.Fatal("expected a rate")
	}
	if rate != 2 {
		t.Fatalf("rate = %.2f, want 2.00", rate)
	}

	if _, ok := c.RateOfChange("missing"); ok {
		t.Fatal("expected no rate for unknown sensor")
	}
}

func TestRemoveReleasesEntry(t *testing.T) {
	c := New(4)
	c.Publish(reading("L001", 50, time.Now()))
	c.Remove("L001")

	if _, ok := c.Latest("L001"); ok {
		t.Fatal("expected entry to be gone after Remove")
	}
}

func TestConcurrentPublishAndRead(t *testing.T) {
	c := New(32)
	base := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				c.Publish(reading("T001", float64(offset*1000+i), base.Add(time.Duration(i)*time.Millisecond)))
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			if r, ok := c.Latest("T001"); ok && r.Quality != models.QualityGood {
				t.Error("observed torn or non-good reading")
				return
			}
			c.Window("T001")
		}
	}()

	wg.Wait()
	<-done
}
