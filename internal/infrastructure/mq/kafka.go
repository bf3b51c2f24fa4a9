// Package mq 管理 Kafka 生产者
//
// 状态转移事件（pool/burn/proposal/balance 等实体的每次转移）
// 经由发件箱表投递到这里，下游的风控・审计消费方订阅对应 topic。
package mq

import (
	"log"

	"tokencore/internal/config"

	"github.com/IBM/sarama"
)

var KafkaProducer sarama.SyncProducer

// InitKafka 初始化 Kafka 同步生产者
//
// 【关键点】RequiredAcks = WaitForAll：状态转移事件是审计依据，
// 宁可投递慢也不能丢。发件箱侧有重试兜底，这里失败直接返回错误。
func InitKafka(cfg *config.KafkaConfig) sarama.SyncProducer {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		log.Fatalf("创建 Kafka 生产者失败: %v", err)
	}

	KafkaProducer = producer
	log.Println("Kafka 生产者创建成功")
	return producer
}

// SendMessage 同步发送一条事件
// key 取实体标识，同一实体的转移保持分区内有序
func SendMessage(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}

	_, _, err := KafkaProducer.SendMessage(msg)
	return err
}

// CloseKafka 关闭 Kafka 生产者
func CloseKafka() {
	if KafkaProducer != nil {
		KafkaProducer.Close()
	}
}
