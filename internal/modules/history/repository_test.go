package history

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func barAt(stamp time.Time, close float64) Bar {
	return Bar{
		Time:       stamp,
		OpenPrice:  close - 10,
		HighPrice:  close + 20,
		LowPrice:   close - 20,
		ClosePrice: close,
		Volume:     100,
	}
}

func TestRepositoryReadMissingFile(t *testing.T) {
	repo, err := NewRepository(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	defer repo.Close()

	bars, err := repo.Read("Si-3.18")
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestRepositorySaveAndRead(t *testing.T) {
	repo, err := NewRepository(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	defer repo.Close()

	stamp := time.Date(2018, 3, 1, 10, 0, 0, 0, time.Local)
	saved := []Bar{
		barAt(stamp, 58000),
		barAt(stamp.Add(5*time.Minute), 58100),
	}
	require.NoError(t, repo.Save("Si-3.18", saved))

	bars, err := repo.Read("Si-3.18")
	require.NoError(t, err)
	assert.Equal(t, saved, bars)
}

func TestRepositorySaveReplacesExisting(t *testing.T) {
	repo, err := NewRepository(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	defer repo.Close()

	stamp := time.Date(2018, 3, 1, 10, 0, 0, 0, time.Local)
	require.NoError(t, repo.Save("Si-3.18", []Bar{barAt(stamp, 58000)}))
	require.NoError(t, repo.Save("Si-3.18", []Bar{barAt(stamp.Add(time.Hour), 59000)}))

	bars, err := repo.Read("Si-3.18")
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 59000.0, bars[0].ClosePrice)
}

func TestRepositoryIsolatesSecurities(t *testing.T) {
	repo, err := NewRepository(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	defer repo.Close()

	stamp := time.Date(2018, 3, 1, 10, 0, 0, 0, time.Local)
	require.NoError(t, repo.Save("Si-3.18", []Bar{barAt(stamp, 58000)}))
	require.NoError(t, repo.Save("RTS-3.18", []Bar{barAt(stamp, 128000)}))

	si, err := repo.Read("Si-3.18")
	require.NoError(t, err)
	rts, err := repo.Read("RTS-3.18")
	require.NoError(t, err)

	require.Len(t, si, 1)
	require.Len(t, rts, 1)
	assert.NotEqual(t, si[0].ClosePrice, rts[0].ClosePrice)
}

func TestRepositoryConcurrentFirstOpen(t *testing.T) {
	// The sync job and report handlers open fresh contract files in parallel.
	repo, err := NewRepository(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	defer repo.Close()

	stamp := time.Date(2018, 3, 1, 10, 0, 0, 0, time.Local)
	codes := []string{
		"Si-3.18", "Si-6.18", "Si-9.18", "Si-12.18",
		"RTS-3.18", "RTS-6.18", "RTS-9.18", "RTS-12.18",
	}

	var wg sync.WaitGroup
	for _, code := range codes {
		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			assert.NoError(t, repo.Save(code, []Bar{barAt(stamp, 58000)}))
		}(code)
	}
	wg.Wait()

	for _, code := range codes {
		bars, err := repo.Read(code)
		require.NoError(t, err)
		assert.Len(t, bars, 1)
	}
}

func TestVerifyBars(t *testing.T) {
	stamp := time.Date(2018, 3, 1, 10, 0, 0, 0, time.Local)
	bars := []Bar{
		barAt(stamp, 1),
		barAt(stamp, 2),
		barAt(stamp.Add(5*time.Minute), 3),
		barAt(stamp.Add(time.Minute), 4),
	}

	verified := verifyBars(bars)

	require.Len(t, verified, 2)
	assert.Equal(t, 1.0, verified[0].ClosePrice)
	assert.Equal(t, 3.0, verified[1].ClosePrice)
}
