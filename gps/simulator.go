package gps

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/Bucknalla/go-truck-nav/geo"
)

// Simulator drives a virtual truck along a polyline at a constant speed and
// emits the NMEA sentences a receiver mounted on it would produce.
type Simulator struct {
	mu         sync.RWMutex
	config     Config
	route      geo.Polyline
	segment    int     // index of the current leg's start vertex
	along      float64 // km travelled along the current leg
	position   geo.Coordinate
	course     float64
	speedKmh   float64
	finished   bool
	isLocked   bool
	lockTime   time.Time
	startTime  time.Time
	lastUpdate time.Time
	satellites []Satellite
	nmeaWriter io.Writer
	rng        *rand.Rand
	// Control fields
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	callbacks []func(NMEAData)
}

// NewSimulator creates a simulator positioned at the start of route
func NewSimulator(config Config, route geo.Polyline) (*Simulator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if len(route) == 0 {
		return nil, ErrEmptyRoute
	}

	sim := &Simulator{
		config:   config,
		route:    append(geo.Polyline(nil), route...),
		position: route[0],
		speedKmh: config.SpeedKmh,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if len(route) > 1 {
		sim.course = geo.Bearing(route[0], route[1])
	}
	sim.initializeSatellites()
	return sim, nil
}

// SetNMEAWriter sets the writer for NMEA output
func (s *Simulator) SetNMEAWriter(writer io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nmeaWriter = writer
}

// AddCallback adds a callback function that will be called with each NMEA data update
func (s *Simulator) AddCallback(callback func(NMEAData)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, callback)
}

// Start starts the simulation
func (s *Simulator) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSimulatorAlreadyRunning
	}

	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true
	s.done = make(chan struct{})
	s.startTime = time.Now()
	s.lastUpdate = s.startTime
	s.lockTime = s.startTime.Add(s.config.TimeToLock)
	s.isLocked = s.config.TimeToLock <= 0

	go s.run(ctx, s.done)
	return nil
}

// Stop stops the simulation and waits for the output loop to exit
func (s *Simulator) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSimulatorNotRunning
	}
	s.cancel()
	s.running = false
	done := s.done
	s.mu.Unlock()

	<-done
	return nil
}

// IsRunning returns whether the simulator is currently running
func (s *Simulator) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// GetStatus returns the current simulator status
func (s *Simulator) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var elapsed time.Duration
	if s.running {
		elapsed = time.Since(s.startTime)
	}
	return Status{
		Running:     s.running,
		StartTime:   s.startTime,
		ElapsedTime: elapsed,
		Fix:         s.fix(time.Now()),
		Segment:     s.segment,
		Segments:    len(s.route) - 1,
		Finished:    s.finished,
	}
}

func (s *Simulator) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.OutputRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.mu.Lock()
			if !s.isLocked && !now.Before(s.lockTime) {
				s.isLocked = true
			}
			if s.isLocked {
				s.advance(now.Sub(s.lastUpdate))
			}
			s.lastUpdate = now
			s.updateSatellites()
			data := s.output(now)
			w := s.nmeaWriter
			callbacks := append([]func(NMEAData){}, s.callbacks...)
			s.mu.Unlock()

			if w != nil {
				for _, sentence := range data.Sentences {
					if _, err := fmt.Fprint(w, sentence); err != nil {
						return
					}
				}
			}
			for _, callback := range callbacks {
				go callback(data) // Call async to avoid blocking
			}
		}
	}
}

// advance moves the truck dt further along the route. At the final vertex
// the truck stops.
func (s *Simulator) advance(dt time.Duration) {
	if s.finished || dt <= 0 {
		return
	}
	remaining := s.speedKmh * dt.Hours()

	for remaining > 0 && s.segment < len(s.route)-1 {
		from, to := s.route[s.segment], s.route[s.segment+1]
		legKm := geo.Distance(from, to)
		if s.along+remaining < legKm {
			s.along += remaining
			s.course = geo.Bearing(from, to)
			s.position = geo.Destination(from, s.along, s.course)
			return
		}
		remaining -= legKm - s.along
		s.segment++
		s.along = 0
		s.position = to
	}

	if s.segment >= len(s.route)-1 {
		s.finished = true
		s.speedKmh = 0
		s.position = s.route[len(s.route)-1]
	}
}

// reported applies receiver noise to the true position.
func (s *Simulator) reported() geo.Coordinate {
	if s.config.Jitter <= 0 {
		return s.position
	}
	offsetKm := s.rng.Float64() * s.config.Jitter / 1000
	return geo.Destination(s.position, offsetKm, s.rng.Float64()*360)
}

func (s *Simulator) fix(now time.Time) Fix {
	if !s.isLocked {
		return Fix{Time: now}
	}
	pos := s.reported()
	knots := s.speedKmh / KnotsToKmh
	course := s.course
	return Fix{
		Latitude:   pos.Lat,
		Longitude:  pos.Lon,
		SpeedKnots: &knots,
		Course:     &course,
		Satellites: len(s.satellites),
		Valid:      true,
		Time:       now,
	}
}

// output generates the sentences for one epoch
func (s *Simulator) output(now time.Time) NMEAData {
	f := s.fix(now)
	sentences := []string{EncodeGGA(f), EncodeRMC(f), EncodeVTG(f)}
	if s.isLocked {
		sentences = append(sentences, EncodeGSV(s.satellites)...)
		sentences = append(sentences, EncodeZDA(now))
	}
	return NMEAData{Sentences: sentences, Fix: f, Timestamp: now}
}

// initializeSatellites initializes the satellite array
func (s *Simulator) initializeSatellites() {
	s.satellites = make([]Satellite, s.config.Satellites)
	for i := range s.satellites {
		s.satellites[i] = Satellite{
			ID:        i + 1,
			Elevation: s.rng.Intn(70) + 10, // 10-80 degrees
			Azimuth:   s.rng.Intn(360),
			SNR:       s.rng.Intn(30) + 20, // 20-50 dB
		}
	}
}

// updateSatellites simulates satellite movement
func (s *Simulator) updateSatellites() {
	for i := range s.satellites {
		sat := &s.satellites[i]
		sat.Elevation = clampInt(sat.Elevation+s.rng.Intn(3)-1, 5, 85)
		sat.Azimuth = (sat.Azimuth + s.rng.Intn(3) - 1 + 360) % 360
		sat.SNR = clampInt(sat.SNR+s.rng.Intn(6)-3, 15, 55)
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
