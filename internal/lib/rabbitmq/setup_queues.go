package rabbitmq

type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

func GetPaymentQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "payments.completed", RoutingKey: "payment.completed"},
		{QueueName: "payments.failed", RoutingKey: "payment.failed"},
	}
}
