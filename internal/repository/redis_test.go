package repository

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/flybeeper/track-recorder/internal/config"
	"github.com/flybeeper/track-recorder/pkg/utils"
)

// RedisOdometerTestSuite тестовый набор для одометра в Redis
type RedisOdometerTestSuite struct {
	suite.Suite
	odometer *RedisOdometer
	client   *redis.Client
	ctx      context.Context
}

// SetupSuite запускается один раз перед всеми тестами
func (suite *RedisOdometerTestSuite) SetupSuite() {
	suite.ctx = context.Background()

	// Используем Redis тестовую базу данных
	cfg := &config.RedisConfig{
		URL:          "redis://localhost:6379",
		DB:           15,
		PoolSize:     2,
		MinIdleConns: 1,
	}

	var err error
	suite.odometer, err = NewRedisOdometer(cfg, utils.NewNopLogger())
	require.NoError(suite.T(), err)

	suite.client = suite.odometer.client

	// Проверяем подключение к Redis
	if err := suite.odometer.Ping(suite.ctx); err != nil {
		suite.T().Skip("Redis not available for testing: " + err.Error())
	}
}

// SetupTest запускается перед каждым тестом
func (suite *RedisOdometerTestSuite) SetupTest() {
	require.NoError(suite.T(), suite.client.FlushDB(suite.ctx).Err())
}

// TearDownSuite запускается один раз после всех тестов
func (suite *RedisOdometerTestSuite) TearDownSuite() {
	if suite.client != nil {
		suite.client.FlushDB(suite.ctx)
		suite.odometer.Close()
	}
}

func (suite *RedisOdometerTestSuite) TestLoadMissingKey() {
	meters, err := suite.odometer.Load(suite.ctx)
	suite.NoError(err)
	suite.Zero(meters)
}

func (suite *RedisOdometerTestSuite) TestAddAccumulates() {
	total, err := suite.odometer.Add(suite.ctx, 12.5)
	suite.Require().NoError(err)
	suite.Equal(12.5, total)

	total, err = suite.odometer.Add(suite.ctx, 7.5)
	suite.Require().NoError(err)
	suite.Equal(20.0, total)

	meters, err := suite.odometer.Load(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(20.0, meters)

	raw, err := suite.client.Get(suite.ctx, OdometerKey).Result()
	suite.Require().NoError(err)
	suite.Equal("20", raw)
}

func (suite *RedisOdometerTestSuite) TestAddRejectsNegative() {
	_, err := suite.odometer.Add(suite.ctx, -3)
	suite.ErrorIs(err, ErrNegativeDistance)
}

func TestRedisOdometerTestSuite(t *testing.T) {
	suite.Run(t, new(RedisOdometerTestSuite))
}

func TestNewRedisOdometer_Validation(t *testing.T) {
	_, err := NewRedisOdometer(nil, utils.NewNopLogger())
	assert.Error(t, err)

	_, err = NewRedisOdometer(&config.RedisConfig{URL: "redis://localhost:6379"}, nil)
	assert.Error(t, err)

	_, err = NewRedisOdometer(&config.RedisConfig{URL: "::not a url"}, utils.NewNopLogger())
	assert.Error(t, err)
}
