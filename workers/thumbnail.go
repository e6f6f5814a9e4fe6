package workers

import (
	"image"
	"log"
	"sync"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/jmestanza/tag-editor/media"
	"github.com/jmestanza/tag-editor/repository"
)

// ThumbnailJob asks for a thumbnail of one stored image asset.
type ThumbnailJob struct {
	ImageID   uint
	DatasetID uint
	FileName  string
	AssetKey  string
}

// ThumbnailGenerator is a channel-fed worker pool that renders thumbnails
// for uploaded image assets and records the resulting object key.
type ThumbnailGenerator struct {
	JobQueue chan ThumbnailJob
	Store    media.Store
	Images   repository.ImageRepositoryInterface
	MaxSize  int
	Wg       sync.WaitGroup
	StopChan chan struct{}
	Pending  map[uint]bool
	Mutex    sync.Mutex

	processor *media.Processor
}

func NewThumbnailGenerator(store media.Store, images repository.ImageRepositoryInterface, maxSize, queueSize, numWorkers int) *ThumbnailGenerator {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}

	gen := &ThumbnailGenerator{
		JobQueue:  make(chan ThumbnailJob, queueSize),
		Store:     store,
		Images:    images,
		MaxSize:   maxSize,
		StopChan:  make(chan struct{}),
		Pending:   make(map[uint]bool),
		processor: media.NewProcessor(store),
	}

	gen.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go gen.worker(i)
	}
	log.Printf("started %d thumbnail worker(s) with queue size %d", numWorkers, queueSize)

	return gen
}

// QueueThumbnail enqueues a job unless the same image is already pending.
// returns false if the queue is full.
func (tg *ThumbnailGenerator) QueueThumbnail(job ThumbnailJob) bool {
	tg.Mutex.Lock()
	if tg.Pending[job.ImageID] {
		tg.Mutex.Unlock()
		return true
	}
	tg.Pending[job.ImageID] = true
	tg.Mutex.Unlock()

	select {
	case tg.JobQueue <- job:
		return true
	default:
		tg.Mutex.Lock()
		delete(tg.Pending, job.ImageID)
		tg.Mutex.Unlock()
		log.Printf("thumbnail queue full, dropping job for image %d", job.ImageID)
		return false
	}
}

func (tg *ThumbnailGenerator) worker(id int) {
	defer tg.Wg.Done()
	log.Printf("thumbnail worker %d started", id)
	for {
		select {
		case job, ok := <-tg.JobQueue:
			if !ok {
				log.Printf("thumbnail worker %d stopping: queue closed", id)
				return
			}
			tg.process(job)
		case <-tg.StopChan:
			log.Printf("thumbnail worker %d stopping", id)
			return
		}
	}
}

func (tg *ThumbnailGenerator) process(job ThumbnailJob) {
	defer func() {
		tg.Mutex.Lock()
		delete(tg.Pending, job.ImageID)
		tg.Mutex.Unlock()
	}()

	reader, _, err := tg.Store.Get(job.AssetKey)
	if err != nil {
		log.Printf("thumbnail worker: failed to open asset %s: %v", job.AssetKey, err)
		_ = tg.Images.UpdateThumbnailResult(job.ImageID, nil, err)
		return
	}
	img, _, err := image.Decode(reader)
	reader.Close()
	if err != nil {
		log.Printf("thumbnail worker: failed to decode %s: %v", job.AssetKey, err)
		_ = tg.Images.UpdateThumbnailResult(job.ImageID, nil, err)
		return
	}

	dstKey := media.ThumbnailKey(job.DatasetID, job.FileName)
	savedKey, err := tg.processor.GenerateThumbnail(img, dstKey, tg.MaxSize)
	if err != nil {
		log.Printf("thumbnail worker: failed to generate thumbnail for image %d: %v", job.ImageID, err)
		_ = tg.Images.UpdateThumbnailResult(job.ImageID, nil, err)
		return
	}

	if err := tg.Images.UpdateThumbnailResult(job.ImageID, &savedKey, nil); err != nil {
		log.Printf("thumbnail worker: failed to record thumbnail for image %d: %v", job.ImageID, err)
	}
}

// Stop signals all workers and waits for them to exit
func (tg *ThumbnailGenerator) Stop() {
	close(tg.StopChan)
	tg.Wg.Wait()
}
