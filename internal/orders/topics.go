package orders

const TopicNotifications = "shop.notifications"

// Partition key = correlation id, so every event of one order stays ordered.
func PartitionKey(id string) []byte { return []byte(id) }
