package messaging

const (
	ExchangeOptimization = "optimization"
	ExchangeProvider     = "provider"
	ExchangeCustomer     = "customer"
	ExchangeRPC          = "rpc"
)

const (
	KeyOptimizationRequest = "request"
	KeyPlanReady           = "plan.ready"
	KeyExecutionCompleted  = "execution.completed"
)

// Topic joins an exchange and routing key into a logical topic name.
// Backends translate the separator where their broker requires it.
func Topic(exchange, routingKey string) string {
	return exchange + "." + routingKey
}

func StrategiesKey(requestID string) string { return "strategies." + requestID }

func SelectKey(requestID string) string { return "select." + requestID }

func ProposeKey(providerID string) string { return providerID + ".propose" }

func ConfirmKey(providerID string) string { return providerID + ".confirm" }

func CancelKey(providerID string) string { return providerID + ".cancel" }

func ExecuteKey(providerID string) string { return providerID + ".execute" }

func CustomerPlanKey(customerID string) string { return customerID + ".plan" }

func replyKey(correlationID string) string { return "reply." + correlationID }
