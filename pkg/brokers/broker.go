package brokers

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoMessages - в очереди нет сообщений (не фатальная ошибка)
var ErrNoMessages = errors.New("no messages available")

// MessageBroker - универсальный интерфейс очереди сообщений на
// принимающей стороне. Поддерживает RabbitMQ и Apache Kafka.
// Тело сообщения - одна или несколько строк входного протокола
// (JSON Lines).
type MessageBroker interface {
	// Connect устанавливает соединение с брокером
	Connect(ctx context.Context) error

	// Close закрывает соединение с брокером
	Close() error

	// Receive получает сообщение из очереди.
	// Сообщение НЕ подтверждается автоматически: после успешной
	// обработки нужно вызвать Ack, при сбое - Nack
	Receive(ctx context.Context) ([]byte, error)

	// Ack подтверждает последнее полученное сообщение
	Ack(ctx context.Context) error

	// Nack отклоняет последнее полученное сообщение (возврат в очередь)
	Nack(ctx context.Context) error

	// Ping проверяет доступность брокера
	Ping(ctx context.Context) error

	// BrokerType возвращает тип брокера (rabbitmq, kafka)
	BrokerType() string
}

// Config содержит параметры подключения к message broker
type Config struct {
	Type     string // rabbitmq, kafka
	Host     string // Хост (для RabbitMQ)
	Port     int    // Порт (для RabbitMQ)
	User     string // Пользователь (для RabbitMQ)
	Password string // Пароль (для RabbitMQ)
	Queue    string // Имя очереди (для RabbitMQ)
	VHost    string // Virtual host (для RabbitMQ, по умолчанию "/")
	UseTLS   bool   // Использовать TLS/SSL (amqps://) для RabbitMQ

	// RabbitMQ параметры очереди (должны совпадать с существующей очередью!)
	Durable    bool // Очередь переживает перезапуск RabbitMQ
	AutoDelete bool // Очередь удаляется когда нет consumer'ов
	Exclusive  bool // Очередь доступна только одному соединению

	// Kafka специфичные параметры
	Brokers       []string // Список Kafka brokers (например: ["localhost:9092"])
	Topic         string   // Имя Kafka topic
	ConsumerGroup string   // Consumer group ID (по умолчанию "dwsink-consumer-group")
}

// New создает новый MessageBroker на основе конфигурации
func New(cfg Config) (MessageBroker, error) {
	switch cfg.Type {
	case "rabbitmq":
		return NewRabbitMQ(cfg)
	case "kafka":
		return NewKafka(cfg)
	default:
		return nil, fmt.Errorf("unsupported broker type: %s (supported: rabbitmq, kafka)", cfg.Type)
	}
}
